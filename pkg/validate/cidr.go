package validate

import (
	"fmt"
	"net"

	"github.com/apparentlymart/go-cidr/cidr"

	"github.com/cuemby/cloudcfg/pkg/address"
	"github.com/cuemby/cloudcfg/pkg/topology"
	"github.com/cuemby/cloudcfg/pkg/types"
)

type span struct {
	network string
	cidr    string
	start   net.IP
	end     net.IP
}

// effective returns the address range a network actually uses: its
// start/end bounds when given, otherwise the whole cidr
func effective(n *types.Network) (span, error) {
	_, ipnet, err := net.ParseCIDR(n.CIDR)
	if err != nil {
		return span{}, fmt.Errorf("network %s has invalid cidr %q", n.Name, n.CIDR)
	}
	first, last := cidr.AddressRange(ipnet)
	s := span{network: n.Name, cidr: ipnet.String(), start: first, end: last}

	bound := func(field, v string) (net.IP, error) {
		ip := net.ParseIP(v)
		if ip == nil {
			return nil, fmt.Errorf("network %s has invalid %s %q", n.Name, field, v)
		}
		if !ipnet.Contains(ip) {
			return nil, fmt.Errorf("network %s: %s %s is outside cidr %s", n.Name, field, v, ipnet)
		}
		return ip, nil
	}
	if n.StartAddress != "" {
		if s.start, err = bound("start-address", n.StartAddress); err != nil {
			return span{}, err
		}
	}
	if n.EndAddress != "" {
		if s.end, err = bound("end-address", n.EndAddress); err != nil {
			return span{}, err
		}
	}
	if address.Compare(s.start, s.end) > 0 {
		return span{}, fmt.Errorf("network %s: start-address %s is after end-address %s", n.Name, s.start, s.end)
	}
	if n.GatewayIP != "" {
		if _, err := bound("gateway-ip", n.GatewayIP); err != nil {
			return span{}, err
		}
	}
	return s, nil
}

// cidrs checks every cidr and reports each overlapping pair of networks once
func cidrs(m *types.Model, _ *topology.Tree, r reporter) {
	var spans []span
	for _, n := range m.Networks {
		if n.CIDR == "" {
			continue
		}
		s, err := effective(n)
		if err != nil {
			r.errorf("%v", err)
			continue
		}
		spans = append(spans, s)
	}

	for i := 0; i < len(spans); i++ {
		for j := i + 1; j < len(spans); j++ {
			a, b := spans[i], spans[j]
			if address.Compare(a.start, b.end) <= 0 && address.Compare(b.start, a.end) <= 0 {
				r.errorf("networks %s (%s) and %s (%s) overlap", a.network, a.cidr, b.network, b.cidr)
			}
		}
	}
}
