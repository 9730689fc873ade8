package address

import (
	"errors"
	"fmt"
	"net"
	"sort"

	"github.com/rs/zerolog"

	"github.com/cuemby/cloudcfg/pkg/log"
	"github.com/cuemby/cloudcfg/pkg/storage"
	"github.com/cuemby/cloudcfg/pkg/types"
)

var (
	ErrPoolExhausted = errors.New("address pool exhausted")
	ErrAddressInUse  = errors.New("address already in use")
	ErrOutOfRange    = errors.New("address out of range")
	ErrNoCIDR        = errors.New("network has no cidr")
)

// Request asks for an address on behalf of a consumer
type Request struct {
	UsedBy string
	Host   string
	// Address takes over a specific (usually static) address
	Address string
	// ServerID records the owning server, if any
	ServerID string
}

// Allocator hands out addresses from network pools and persists every decision
type Allocator struct {
	store     storage.Store
	static    map[string]string
	persisted map[string]types.AddressRecord
	confirmed map[string]bool
	pools     map[string]*Pool
	logger    zerolog.Logger

	// OnAllocate is called with the network name after each allocation
	OnAllocate func(network string)
}

// NewAllocator loads persisted addresses and the static addresses of servers
func NewAllocator(store storage.Store, servers []*types.Server) (*Allocator, error) {
	a := &Allocator{
		store:     store,
		static:    make(map[string]string),
		persisted: make(map[string]types.AddressRecord),
		confirmed: make(map[string]bool),
		pools:     make(map[string]*Pool),
		logger:    log.WithComponent("address"),
	}

	for _, s := range servers {
		if ip := net.ParseIP(s.IPAddr); ip != nil {
			a.static[ip.String()] = s.ID
		}
	}

	doc, err := store.Document(types.NamespaceAddresses)
	if err != nil {
		return nil, fmt.Errorf("failed to load addresses: %w", err)
	}
	for addr, raw := range doc {
		var rec types.AddressRecord
		if err := storage.Decode(raw, &rec); err != nil {
			return nil, fmt.Errorf("address %s: %w", addr, err)
		}
		a.persisted[addr] = rec
	}
	return a, nil
}

// GeneratePool builds (once) the pool of a network: persisted owners first,
// then static server addresses, everything else free.
func (a *Allocator) GeneratePool(n *types.Network) (*Pool, error) {
	if p, ok := a.pools[n.Name]; ok {
		return p, nil
	}
	p, err := newPool(n)
	if err != nil {
		return nil, err
	}

	for addr, rec := range a.persisted {
		if !p.Contains(addr) {
			continue
		}
		p.used[addr] = &Record{
			Address:   addr,
			Network:   n.Name,
			UsedBy:    rec.UsedBy,
			Host:      rec.Host,
			ServerID:  rec.ServerID,
			Persisted: true,
		}
	}
	for addr, serverID := range a.static {
		if !p.Contains(addr) {
			continue
		}
		if _, ok := p.used[addr]; ok {
			continue
		}
		p.used[addr] = &Record{Address: addr, Network: n.Name, ServerID: serverID, Static: true}
	}

	a.pools[n.Name] = p
	return p, nil
}

// Pool returns a generated pool by network name
func (a *Allocator) Pool(network string) (*Pool, bool) {
	p, ok := a.pools[network]
	return p, ok
}

// Allocate returns an address for the request. A repeated request for the
// same (UsedBy, Host) returns the same address.
func (a *Allocator) Allocate(p *Pool, req Request) (string, error) {
	if req.Address != "" {
		return a.takeOver(p, req)
	}

	if rec, ok := p.owned(req.UsedBy, req.Host); ok {
		return rec.Address, a.commit(p, rec, req)
	}

	ip, ok := p.firstFree()
	if !ok {
		return "", fmt.Errorf("%w: no free address in network %s for %s %s",
			ErrPoolExhausted, p.Network, req.UsedBy, req.Host)
	}
	rec := &Record{Address: ip.String(), Network: p.Network}
	p.used[rec.Address] = rec
	return rec.Address, a.commit(p, rec, req)
}

func (a *Allocator) takeOver(p *Pool, req Request) (string, error) {
	ip := net.ParseIP(req.Address)
	if ip == nil || !p.CIDR.Contains(ip) {
		return "", fmt.Errorf("%w: %s is not in network %s (%s)", ErrOutOfRange, req.Address, p.Network, p.CIDR)
	}
	addr := ip.String()

	rec, ok := p.used[addr]
	switch {
	case !ok:
		rec = &Record{Address: addr, Network: p.Network}
		p.used[addr] = rec
	case rec.owns(req.UsedBy, req.Host):
	case rec.Free():
	case rec.UsedBy == "" && rec.ServerID == req.ServerID:
		// static claim taken over by its own server
	case !rec.Allocated && rec.ServerID != "" && rec.ServerID == req.ServerID:
		// persisted for this server under an older identity
	default:
		return "", fmt.Errorf("%w: %s in network %s is held by %s %s, requested by %s %s",
			ErrAddressInUse, addr, p.Network, owner(rec), rec.Host, req.UsedBy, req.Host)
	}
	return addr, a.commit(p, rec, req)
}

func owner(r *Record) string {
	if r.UsedBy != "" {
		return r.UsedBy
	}
	return "server " + r.ServerID
}

func (a *Allocator) commit(p *Pool, rec *Record, req Request) error {
	rec.UsedBy = req.UsedBy
	rec.Host = req.Host
	if req.ServerID != "" {
		rec.ServerID = req.ServerID
	}
	rec.Network = p.Network
	rec.Allocated = true
	a.confirmed[rec.Address] = true

	persisted := types.AddressRecord{
		Network:  rec.Network,
		UsedBy:   rec.UsedBy,
		Host:     rec.Host,
		ServerID: rec.ServerID,
	}
	a.persisted[rec.Address] = persisted
	if err := a.store.Put(types.NamespaceAddresses, map[string]interface{}{rec.Address: persisted}); err != nil {
		return fmt.Errorf("failed to persist address %s: %w", rec.Address, err)
	}

	logger := a.logger
	if rec.ServerID != "" {
		logger = log.WithServerID(logger, rec.ServerID)
	}
	logger.Debug().
		Str("network", p.Network).
		Str("address", rec.Address).
		Str("used_by", rec.UsedBy).
		Str("host", rec.Host).
		Msg("address allocated")
	if a.OnAllocate != nil {
		a.OnAllocate(p.Network)
	}
	return nil
}

// Unused returns persisted addresses that nothing reconfirmed during this run
func (a *Allocator) Unused() []Record {
	var out []Record
	for addr, rec := range a.persisted {
		if a.confirmed[addr] {
			continue
		}
		out = append(out, Record{
			Address:   addr,
			Network:   rec.Network,
			UsedBy:    rec.UsedBy,
			Host:      rec.Host,
			ServerID:  rec.ServerID,
			Persisted: true,
		})
	}
	sort.Slice(out, func(i, j int) bool { return Less(out[i].Address, out[j].Address) })
	return out
}

// Release frees an address and removes it from persisted state
func (a *Allocator) Release(addr string) error {
	delete(a.persisted, addr)
	delete(a.confirmed, addr)
	for _, p := range a.pools {
		if rec, ok := p.used[addr]; ok {
			if rec.Static {
				rec.UsedBy, rec.Host, rec.Allocated, rec.Persisted = "", "", false, false
			} else {
				delete(p.used, addr)
			}
		}
	}
	return a.store.Delete(types.NamespaceAddresses, addr)
}

// PurgeServer releases every persisted address owned by a server and returns them
func (a *Allocator) PurgeServer(serverID string) ([]string, error) {
	var freed []string
	for addr, rec := range a.persisted {
		if rec.ServerID == serverID {
			freed = append(freed, addr)
		}
	}
	sort.Slice(freed, func(i, j int) bool { return Less(freed[i], freed[j]) })
	for _, addr := range freed {
		if err := a.Release(addr); err != nil {
			return nil, err
		}
	}
	return freed, nil
}
