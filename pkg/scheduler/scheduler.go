package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/cloudcfg/pkg/address"
	"github.com/cuemby/cloudcfg/pkg/diag"
	"github.com/cuemby/cloudcfg/pkg/hostname"
	"github.com/cuemby/cloudcfg/pkg/log"
	"github.com/cuemby/cloudcfg/pkg/storage"
	"github.com/cuemby/cloudcfg/pkg/topology"
	"github.com/cuemby/cloudcfg/pkg/types"
)

// Source tags diagnostics recorded by the scheduler
const Source = "server-allocation"

// DefaultMemberPrefix separates the cluster prefix from the member id
const DefaultMemberPrefix = "-m"

// Config holds the options that change how persisted allocations are treated
type Config struct {
	// RemoveDeletedServers purges allocations of servers missing from the
	// input instead of keeping their member ids reserved
	RemoveDeletedServers bool
}

// Scheduler assigns servers to the member slots of clusters and resource groups
type Scheduler struct {
	model     *types.Model
	tree      *topology.Tree
	store     storage.Store
	addresses *address.Allocator
	hostnames *hostname.Registry
	diag      *diag.Diagnostics
	config    Config
	logger    zerolog.Logger

	records map[string]*types.AllocationRecord

	// OnAllocate is called with the group key for every newly allocated member
	OnAllocate func(group string)
}

// NewScheduler creates a scheduler over the model and persisted allocations
func NewScheduler(m *types.Model, tree *topology.Tree, store storage.Store, addresses *address.Allocator,
	hostnames *hostname.Registry, d *diag.Diagnostics, cfg Config) *Scheduler {
	return &Scheduler{
		model:     m,
		tree:      tree,
		store:     store,
		addresses: addresses,
		hostnames: hostnames,
		diag:      d,
		config:    cfg,
		logger:    log.WithComponent("scheduler"),
		records:   make(map[string]*types.AllocationRecord),
	}
}

// State implements topology.StateLookup
func (s *Scheduler) State(serverID string) types.ServerState {
	rec, ok := s.records[serverID]
	if !ok {
		return types.ServerAvailable
	}
	return rec.State
}

// Record returns the allocation record of a server
func (s *Scheduler) Record(serverID string) (types.AllocationRecord, bool) {
	rec, ok := s.records[serverID]
	if !ok {
		return types.AllocationRecord{}, false
	}
	return *rec, true
}

// Prepare loads persisted allocations and runs the orphan and deletion pass
// over the whole model. It must run before Run.
func (s *Scheduler) Prepare() error {
	doc, err := s.store.Document(types.NamespaceAllocations)
	if err != nil {
		return fmt.Errorf("failed to load server allocations: %w", err)
	}
	for id, raw := range doc {
		var rec types.AllocationRecord
		if err := storage.Decode(raw, &rec); err != nil {
			return fmt.Errorf("server allocation %s: %w", id, err)
		}
		if rec.Active() {
			s.records[id] = &rec
		}
	}

	stranded := make(map[string][]string)
	for _, id := range s.sortedRecordIDs() {
		rec := s.records[id]
		if _, ok := s.model.Group(rec.ControlPlane, rec.Group); !ok {
			key := types.GroupKey(rec.ControlPlane, rec.Group)
			stranded[key] = append(stranded[key], fmt.Sprintf("%s (member %d)", id, rec.MemberID))
			continue
		}

		_, present := s.model.Server(id)
		switch {
		case !present && s.config.RemoveDeletedServers:
			if err := s.purge(id, rec); err != nil {
				return err
			}
		case !present:
			if rec.State != types.ServerDeleted {
				rec.State = types.ServerDeleted
				if err := s.persist(id); err != nil {
					return err
				}
			}
			s.diag.Warnf(Source, "server %s is no longer in the input model: member %d of %s stays reserved (deleted)",
				id, rec.MemberID, types.GroupKey(rec.ControlPlane, rec.Group))
		case rec.State == types.ServerDeleted && s.config.RemoveDeletedServers:
			// returned after deletion: start over as available
			delete(s.records, id)
			if err := s.store.Delete(types.NamespaceAllocations, id); err != nil {
				return fmt.Errorf("failed to remove allocation of %s: %w", id, err)
			}
			s.diag.Warnf(Source, "server %s returned after deletion and is available again", id)
		}
	}

	keys := make([]string, 0, len(stranded))
	for k := range stranded {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.diag.Errorf(Source, "%s no longer exists in the input model but still has allocated servers: %s",
			k, strings.Join(stranded[k], ", "))
	}
	return nil
}

func (s *Scheduler) purge(id string, rec *types.AllocationRecord) error {
	delete(s.records, id)
	if err := s.store.Delete(types.NamespaceAllocations, id); err != nil {
		return fmt.Errorf("failed to remove allocation of %s: %w", id, err)
	}
	freed, err := s.addresses.PurgeServer(id)
	if err != nil {
		return fmt.Errorf("failed to free addresses of %s: %w", id, err)
	}
	msg := fmt.Sprintf("removed deleted server %s from member %d of %s",
		id, rec.MemberID, types.GroupKey(rec.ControlPlane, rec.Group))
	if len(freed) > 0 {
		msg += "; freed addresses " + strings.Join(freed, ", ")
	}
	s.diag.Warnf(Source, "%s", msg)
	return nil
}

// Run allocates members for every cluster and resource group in input order
func (s *Scheduler) Run() error {
	for _, cp := range s.model.ControlPlanes {
		for _, g := range cp.Groups() {
			if err := s.allocateGroup(cp, g); err != nil {
				return fmt.Errorf("failed to allocate %s: %w", g.Key(), err)
			}
		}
	}
	return nil
}

func (s *Scheduler) allocateGroup(cp *types.ControlPlane, g *types.Cluster) error {
	logger := log.WithControlPlane(s.logger, cp.Name).With().Str("group", g.Name).Logger()

	zones := g.FailureZones
	if len(zones) == 0 {
		zones = cp.FailureZones
	}
	def := ""
	if len(zones) == 0 {
		def = topology.DefaultGroup
	}
	min, max := g.Min(), g.Max()
	full := func(n int) bool { return max >= 0 && n >= max }

	var members []*types.Member
	reserved := make(map[int]bool)
	var live, deleted []string
	for _, id := range s.sortedRecordIDs() {
		rec := s.records[id]
		if rec.ControlPlane != cp.Name || rec.Group != g.Name {
			continue
		}
		reserved[rec.MemberID] = true
		if _, present := s.model.Server(id); !present {
			continue
		}
		if rec.State == types.ServerAllocated {
			live = append(live, id)
		} else {
			deleted = append(deleted, id)
		}
	}

	// restore persisted members in their slots
	for _, id := range live {
		rec := s.records[id]
		zone := s.tree.GetZone(zones, id, "")
		if len(zones) > 0 && zone == "" {
			s.diag.Warnf(Source, "server %s (member %d of %s) is not in any of the failure zones %v",
				id, rec.MemberID, g.Key(), zones)
		}
		if srv, _ := s.model.Server(id); !g.ServerRoles.Contains(srv.Role) {
			s.diag.Warnf(Source, "server %s (member %d of %s) has role %s which the group no longer lists",
				id, rec.MemberID, g.Key(), srv.Role)
		}
		m, err := s.bind(cp, g, id, rec.MemberID, zone)
		if err != nil {
			return err
		}
		members = append(members, m)
	}
	if max >= 0 && len(members) > max {
		s.diag.Warnf(Source, "%s has %d members restored from persisted state, more than its maximum of %d",
			g.Key(), len(members), max)
	}

	// servers that came back after being marked deleted
	for _, id := range deleted {
		rec := s.records[id]
		if full(len(members)) {
			s.diag.Warnf(Source, "server %s returned but %s is full; member %d stays reserved",
				id, g.Key(), rec.MemberID)
			continue
		}
		zone := s.tree.GetZone(zones, id, "")
		if len(zones) > 0 && zone == "" {
			s.diag.Errorf(Source, "server %s returned but is not in any of the failure zones %v of %s",
				id, zones, g.Key())
			continue
		}
		rec.State = types.ServerAllocated
		m, err := s.bind(cp, g, id, rec.MemberID, zone)
		if err != nil {
			return err
		}
		members = append(members, m)
		s.diag.Warnf(Source, "server %s returned and was restored as member %d of %s", id, rec.MemberID, g.Key())
	}

	strict := g.Policy() == types.AllocationStrict
	search := append([]string(nil), zones...)
	if strict {
		for _, m := range members {
			search = without(search, m.FailureZone)
		}
		if len(search) == 0 {
			search = append([]string(nil), zones...)
		}
	}

	next := 1
	for !full(len(members)) {
		srv, ok := s.tree.GetServer(search, types.ServerAvailable, g.ServerRoles, def, s)
		if !ok && strict && len(search) < len(zones) {
			search = append([]string(nil), zones...)
			srv, ok = s.tree.GetServer(search, types.ServerAvailable, g.ServerRoles, def, s)
		}
		if !ok {
			break
		}

		for reserved[next] {
			next++
		}
		reserved[next] = true
		zone := s.tree.GetZone(zones, srv.ID, "")
		s.records[srv.ID] = &types.AllocationRecord{
			State:        types.ServerAllocated,
			ControlPlane: cp.Name,
			Group:        g.Name,
			MemberID:     next,
		}
		m, err := s.bind(cp, g, srv.ID, next, zone)
		if err != nil {
			return err
		}
		members = append(members, m)

		logger.Info().
			Str("server_id", srv.ID).
			Int("member_id", next).
			Str("failure_zone", zone).
			Msg("Allocated server")
		if s.OnAllocate != nil {
			s.OnAllocate(g.Key())
		}

		if strict {
			search = without(search, zone)
			if len(search) == 0 {
				search = append([]string(nil), zones...)
			}
		}
	}

	if len(members) < min {
		searched := zones
		if len(searched) == 0 {
			searched = []string{topology.DefaultGroup}
		}
		s.diag.Errorf(Source, "%s %s needs at least %d members with role %v but only %d could be allocated (zones searched: %v)",
			g.Kind, g.Key(), min, []string(g.ServerRoles), len(members), searched)
	}

	sort.Slice(members, func(i, j int) bool { return members[i].MemberID < members[j].MemberID })
	g.Members = members
	return nil
}

// bind fills in a member and persists its allocation record
func (s *Scheduler) bind(cp *types.ControlPlane, g *types.Cluster, serverID string, memberID int, zone string) (*types.Member, error) {
	name, prev := s.hostnames.Register(s.Hostname(cp, g, memberID), "server:"+serverID)
	if prev != "" {
		s.diag.Warnf(Source, "hostname %s of server %s replaces the one registered by %s", name, serverID, prev)
	}
	if err := s.persist(serverID); err != nil {
		return nil, err
	}
	return &types.Member{
		ServerID:    serverID,
		MemberID:    memberID,
		FailureZone: zone,
		Hostname:    name,
	}, nil
}

func (s *Scheduler) persist(serverID string) error {
	rec := *s.records[serverID]
	if err := s.store.Put(types.NamespaceAllocations, map[string]interface{}{serverID: rec}); err != nil {
		return fmt.Errorf("failed to persist allocation of %s: %w", serverID, err)
	}
	return nil
}

// Hostname synthesizes the name of a member slot
func (s *Scheduler) Hostname(cp *types.ControlPlane, g *types.Cluster, memberID int) string {
	parts := make([]string, 0, 3)
	if p := s.model.Cloud.HostnameData.HostPrefix; p != "" {
		parts = append(parts, p)
	}
	if cp.Prefix != "" {
		parts = append(parts, cp.Prefix)
	} else {
		parts = append(parts, cp.Name)
	}

	if g.Kind == types.GroupKindResource {
		parts = append(parts, fmt.Sprintf("%s%04d", g.Prefix(), memberID))
	} else {
		mp := s.model.Cloud.HostnameData.MemberPrefix
		if mp == "" {
			mp = DefaultMemberPrefix
		}
		parts = append(parts, fmt.Sprintf("%s%s%d", g.Prefix(), mp, memberID))
	}
	return strings.Join(parts, "-")
}

func (s *Scheduler) sortedRecordIDs() []string {
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func without(zones []string, zone string) []string {
	out := zones[:0:0]
	for _, z := range zones {
		if z != zone {
			out = append(out, z)
		}
	}
	return out
}
