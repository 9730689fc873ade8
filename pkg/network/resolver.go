package network

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/cuemby/cloudcfg/pkg/address"
	"github.com/cuemby/cloudcfg/pkg/diag"
	"github.com/cuemby/cloudcfg/pkg/hostname"
	"github.com/cuemby/cloudcfg/pkg/log"
	"github.com/cuemby/cloudcfg/pkg/topology"
	"github.com/cuemby/cloudcfg/pkg/types"
)

// Source tags diagnostics recorded by the network resolver
const Source = "network"

// UsedByServer is the address consumer tag of server interfaces
const UsedByServer = "server"

// Resolver attaches allocated servers to networks and derives their routes
type Resolver struct {
	model     *types.Model
	tree      *topology.Tree
	addresses *address.Allocator
	hostnames *hostname.Registry
	diag      *diag.Diagnostics
	logger    zerolog.Logger
}

// NewResolver creates a network resolver
func NewResolver(m *types.Model, tree *topology.Tree, addresses *address.Allocator,
	hostnames *hostname.Registry, d *diag.Diagnostics) *Resolver {
	return &Resolver{
		model:     m,
		tree:      tree,
		addresses: addresses,
		hostnames: hostnames,
		diag:      d,
		logger:    log.WithComponent("network"),
	}
}

// attachment is a network group reachable through one interface
type attachment struct {
	group  string
	iface  string
	device string
	forced bool
}

// Resolve builds the resolved groups and servers from the allocated members
// and attaches every server to its networks.
func (r *Resolver) Resolve(res *types.Resolved) error {
	for _, cp := range r.model.ControlPlanes {
		for _, g := range cp.Groups() {
			comps := components(cp, g)
			res.Groups = append(res.Groups, &types.ResolvedGroup{
				Name:         g.Name,
				ControlPlane: cp.Name,
				Kind:         g.Kind,
				Members:      g.Members,
				Components:   comps,
			})
			for _, m := range g.Members {
				srv, ok := r.model.Server(m.ServerID)
				if !ok {
					continue
				}
				rs := &types.ResolvedServer{
					ID:           srv.ID,
					Hostname:     m.Hostname,
					Role:         srv.Role,
					ControlPlane: cp.Name,
					Group:        g.Name,
					MemberID:     m.MemberID,
					FailureZone:  m.FailureZone,
					IPAddr:       srv.IPAddr,
					Components:   comps,
					PassThrough:  r.passThrough(srv.ID),
				}
				if err := r.attach(rs, srv); err != nil {
					return fmt.Errorf("failed to attach networks of %s: %w", srv.ID, err)
				}
				res.Servers = append(res.Servers, rs)
			}
		}
	}
	res.SortServers()
	return nil
}

func (r *Resolver) passThrough(serverID string) map[string]interface{} {
	for _, p := range r.model.PassThrough.Servers {
		if p.ID == serverID {
			return p.Data
		}
	}
	return nil
}

// reachable lists the network groups of the server's interface model in order
func (r *Resolver) reachable(srv *types.Server) ([]attachment, bool) {
	role, ok := r.model.ServerRole(srv.Role)
	if !ok {
		r.diag.Errorf(Source, "server %s has undefined role %s", srv.ID, srv.Role)
		return nil, false
	}
	im, ok := r.model.InterfaceModel(role.InterfaceModel)
	if !ok {
		r.diag.Errorf(Source, "server role %s uses undefined interface model %s", role.Name, role.InterfaceModel)
		return nil, false
	}

	var out []attachment
	seen := make(map[string]bool)
	for _, ni := range im.NetworkInterfaces {
		add := func(group string, forced bool) {
			if seen[group] {
				r.diag.Errorf(Source, "interface model %s attaches network group %s more than once", im.Name, group)
				return
			}
			seen[group] = true
			out = append(out, attachment{group: group, iface: ni.Name, device: ni.Device.Name, forced: forced})
		}
		for _, g := range ni.NetworkGroups {
			add(g, false)
		}
		for _, g := range ni.ForcedNetworkGroups {
			add(g, true)
		}
	}
	return out, true
}

func (r *Resolver) attach(rs *types.ResolvedServer, srv *types.Server) error {
	atts, ok := r.reachable(srv)
	if !ok {
		return nil
	}
	byGroup := make(map[string]attachment, len(atts))
	for _, a := range atts {
		byGroup[a.group] = a
	}
	role, _ := r.model.ServerRole(srv.Role)

	retained := make(map[string][]string)
	for _, comp := range rs.Components {
		for _, req := range requirements(r.model, comp) {
			if _, ok := byGroup[req.group]; !ok {
				r.unreachable(srv, role.InterfaceModel, comp, req)
				continue
			}
			if !contains(retained[req.group], comp) {
				retained[req.group] = append(retained[req.group], comp)
			}
		}
	}

	var hostnameGroups, defaultGroups []string
	for _, a := range atts {
		comps, needed := retained[a.group]
		if !needed && !a.forced {
			continue
		}
		sn, ok, err := r.attachOne(rs, srv, a)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		sn.Components = comps
		if sn.Hostname {
			hostnameGroups = append(hostnameGroups, a.group)
		}
		if sn.DefaultRoute {
			defaultGroups = append(defaultGroups, a.group)
		}
		rs.Networks = append(rs.Networks, sn)
	}

	if len(hostnameGroups) > 1 {
		r.diag.Errorf(Source, "server %s has more than one hostname network group: %v", srv.ID, hostnameGroups)
	}
	if len(defaultGroups) > 1 {
		r.diag.Errorf(Source, "server %s has more than one network group with a default route: %v", srv.ID, defaultGroups)
	}
	return nil
}

func (r *Resolver) unreachable(srv *types.Server, im, comp string, req requirement) {
	switch {
	case req.via != viaTag:
		r.diag.Errorf(Source, "component %s on server %s needs network group %s which interface model %s does not connect",
			comp, srv.ID, req.group, im)
	case req.tag.Required:
		r.diag.Errorf(Source, "component %s on server %s requires network tag %s on group %s which interface model %s does not connect",
			comp, srv.ID, req.tag.Name, req.group, im)
	case req.tag.Expected:
		r.diag.Warnf(Source, "component %s on server %s expects network tag %s on group %s which interface model %s does not connect",
			comp, srv.ID, req.tag.Name, req.group, im)
	}
}

// attachOne resolves the concrete network of a group for the server and
// gives it an address when the network has a cidr
func (r *Resolver) attachOne(rs *types.ResolvedServer, srv *types.Server, a attachment) (*types.ServerNetwork, bool, error) {
	ng, ok := r.model.NetworkGroup(a.group)
	if !ok {
		r.diag.Errorf(Source, "server %s is attached to undefined network group %s", srv.ID, a.group)
		return nil, false, nil
	}
	zone := r.tree.ServerGroupOf(srv.ID)
	n, ok := r.tree.FindNetwork(zone, a.group, topology.DefaultGroup)
	if !ok {
		r.diag.Errorf(Source, "no network of group %s is reachable from server group %s (server %s)", a.group, zone, srv.ID)
		return nil, false, nil
	}

	sn := &types.ServerNetwork{
		Network:      n.Name,
		NetworkGroup: a.group,
		Interface:    a.iface,
		Device:       a.device,
		Gateway:      n.GatewayIP,
		VLANID:       n.VLANID,
		Tagged:       n.Tagged(),
		Hostname:     ng.Hostname,
		DefaultRoute: ng.HasDefaultRoute(),
	}

	if n.CIDR != "" {
		pool, err := r.addresses.GeneratePool(n)
		if err != nil {
			r.diag.Errorf(Source, "%v", err)
			return nil, false, nil
		}
		req := address.Request{UsedBy: UsedByServer, Host: srv.ID, ServerID: srv.ID}
		if srv.IPAddr != "" && pool.Contains(srv.IPAddr) {
			req.Address = srv.IPAddr
		}
		addr, err := r.addresses.Allocate(pool, req)
		switch {
		case errors.Is(err, address.ErrPoolExhausted), errors.Is(err, address.ErrAddressInUse),
			errors.Is(err, address.ErrOutOfRange):
			r.diag.Errorf(Source, "server %s: %v", srv.ID, err)
			return nil, false, nil
		case err != nil:
			return nil, false, err
		}
		sn.Address = addr
		sn.CIDR = pool.CIDR.String()
	}

	alias, prev := r.hostnames.Register(rs.Hostname+"-"+ng.Suffix(), "server:"+srv.ID)
	if prev != "" {
		r.diag.Warnf(Source, "alias %s of server %s replaces the one registered by %s", alias, srv.ID, prev)
	}
	sn.Alias = alias

	logger := log.WithServerID(r.logger, srv.ID)
	logger.Debug().
		Str("network", n.Name).
		Str("address", sn.Address).
		Msg("attached network")
	return sn, true, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
