package address

import (
	"bytes"
	"fmt"
	"net"
	"sort"

	"github.com/apparentlymart/go-cidr/cidr"

	"github.com/cuemby/cloudcfg/pkg/types"
)

// Record is the state of one non-free address of a pool
type Record struct {
	Address  string
	Network  string
	UsedBy   string
	Host     string
	ServerID string

	// Static marks an address pre-claimed by a server's own ip-addr
	Static bool
	// Persisted marks an address recovered from a previous run
	Persisted bool
	// Allocated marks an address confirmed during this run
	Allocated bool
}

// Free reports whether nobody holds the address
func (r *Record) Free() bool {
	return !r.Static && !r.Persisted && !r.Allocated
}

func (r *Record) owns(usedBy, host string) bool {
	return r.UsedBy != "" && r.UsedBy == usedBy && r.Host == host
}

// Pool is the allocatable range of one network. Free addresses are not
// materialised; only addresses with an owner are kept in used.
type Pool struct {
	Network string
	CIDR    *net.IPNet
	Start   net.IP
	End     net.IP
	Gateway net.IP

	used map[string]*Record
}

func newPool(n *types.Network) (*Pool, error) {
	if n.CIDR == "" {
		return nil, fmt.Errorf("%w: network %s", ErrNoCIDR, n.Name)
	}
	_, ipnet, err := net.ParseCIDR(n.CIDR)
	if err != nil {
		return nil, fmt.Errorf("network %s: invalid cidr %q: %w", n.Name, n.CIDR, err)
	}

	ones, bits := ipnet.Mask.Size()
	if ones > bits-2 {
		return nil, fmt.Errorf("network %s: cidr %s too small to allocate from", n.Name, n.CIDR)
	}

	first, last := cidr.AddressRange(ipnet)
	p := &Pool{
		Network: n.Name,
		CIDR:    ipnet,
		Start:   cidr.Inc(first),
		End:     cidr.Dec(last),
		used:    make(map[string]*Record),
	}

	if n.StartAddress != "" {
		if p.Start, err = parseInside(ipnet, n.StartAddress); err != nil {
			return nil, fmt.Errorf("network %s: start-address: %w", n.Name, err)
		}
	}
	if n.EndAddress != "" {
		if p.End, err = parseInside(ipnet, n.EndAddress); err != nil {
			return nil, fmt.Errorf("network %s: end-address: %w", n.Name, err)
		}
	}
	if Compare(p.Start, p.End) > 0 {
		return nil, fmt.Errorf("network %s: start-address %s is after end-address %s", n.Name, p.Start, p.End)
	}
	if n.GatewayIP != "" {
		if p.Gateway, err = parseInside(ipnet, n.GatewayIP); err != nil {
			return nil, fmt.Errorf("network %s: gateway-ip: %w", n.Name, err)
		}
	}
	return p, nil
}

func parseInside(ipnet *net.IPNet, s string) (net.IP, error) {
	ip := net.ParseIP(s)
	if ip == nil {
		return nil, fmt.Errorf("invalid address %q", s)
	}
	if !ipnet.Contains(ip) {
		return nil, fmt.Errorf("%w: %s not in %s", ErrOutOfRange, s, ipnet)
	}
	if v4 := ip.To4(); v4 != nil && len(ipnet.IP) == net.IPv4len {
		return v4, nil
	}
	return ip, nil
}

// Contains reports whether an address lies in the pool's CIDR
func (p *Pool) Contains(addr string) bool {
	ip := net.ParseIP(addr)
	return ip != nil && p.CIDR.Contains(ip)
}

// InRange reports whether an address is in the allocatable [start, end] range
func (p *Pool) InRange(ip net.IP) bool {
	return Compare(ip, p.Start) >= 0 && Compare(ip, p.End) <= 0
}

// IsFree reports whether an address of the pool has no owner
func (p *Pool) IsFree(addr string) bool {
	ip := net.ParseIP(addr)
	if ip == nil || !p.InRange(ip) || ip.Equal(p.Gateway) {
		return false
	}
	rec, ok := p.used[ip.String()]
	return !ok || rec.Free()
}

// Record returns the owner record of an address
func (p *Pool) Record(addr string) (*Record, bool) {
	rec, ok := p.used[addr]
	return rec, ok
}

// Records returns every non-free address in ascending order
func (p *Pool) Records() []*Record {
	recs := make([]*Record, 0, len(p.used))
	for _, r := range p.used {
		recs = append(recs, r)
	}
	sort.Slice(recs, func(i, j int) bool { return Less(recs[i].Address, recs[j].Address) })
	return recs
}

// firstFree walks the range in ascending order, skipping the gateway
func (p *Pool) firstFree() (net.IP, bool) {
	ip := p.Start
	for {
		if p.Gateway == nil || !ip.Equal(p.Gateway) {
			if rec, ok := p.used[ip.String()]; !ok || rec.Free() {
				return ip, true
			}
		}
		if Compare(ip, p.End) >= 0 {
			return nil, false
		}
		ip = cidr.Inc(ip)
	}
}

// owned returns the lowest address held by (usedBy, host)
func (p *Pool) owned(usedBy, host string) (*Record, bool) {
	var found *Record
	for _, r := range p.used {
		if !r.owns(usedBy, host) {
			continue
		}
		if found == nil || Less(r.Address, found.Address) {
			found = r
		}
	}
	return found, found != nil
}

// Compare orders two addresses numerically
func Compare(a, b net.IP) int {
	return bytes.Compare(a.To16(), b.To16())
}

// Less orders two address strings numerically; strings that are not
// addresses fall back to lexical order
func Less(a, b string) bool {
	if c := Compare(net.ParseIP(a), net.ParseIP(b)); c != 0 {
		return c < 0
	}
	return a < b
}
