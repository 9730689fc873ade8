package artifacts

import (
	"sort"

	"github.com/cuemby/cloudcfg/pkg/address"
	"github.com/cuemby/cloudcfg/pkg/types"
)

// FirewallEntry is one allow rule applied to an address
type FirewallEntry struct {
	Chain          string `yaml:"chain"`
	Type           string `yaml:"type"`
	RemoteIPPrefix string `yaml:"remote-ip-prefix"`
	PortRangeMin   int    `yaml:"port-range-min"`
	PortRangeMax   int    `yaml:"port-range-max"`
	Protocol       string `yaml:"protocol"`
}

// AddressRules are the rules of one address
type AddressRules struct {
	Address string          `yaml:"address"`
	Network string          `yaml:"network"`
	Rules   []FirewallEntry `yaml:"rules"`
}

// BuildFirewall applies every firewall rule to each server and VIP address on
// the networks of its network groups
func BuildFirewall(m *types.Model, res *types.Resolved) []AddressRules {
	type target struct{ addr, network string }
	byGroup := make(map[string][]target)
	for _, s := range res.Servers {
		for _, n := range s.Networks {
			if n.Address != "" {
				byGroup[n.NetworkGroup] = append(byGroup[n.NetworkGroup], target{n.Address, n.Network})
			}
		}
	}
	for _, v := range res.VIPs {
		if v.Address != "" && v.Network != "" {
			byGroup[v.NetworkGroup] = append(byGroup[v.NetworkGroup], target{v.Address, v.Network})
		}
	}

	rules := make(map[string]*AddressRules)
	for _, fw := range m.FirewallRules {
		for _, group := range fw.NetworkGroups {
			for _, t := range byGroup[group] {
				ar, ok := rules[t.addr]
				if !ok {
					ar = &AddressRules{Address: t.addr, Network: t.network}
					rules[t.addr] = ar
				}
				for _, r := range fw.Rules {
					entry := FirewallEntry{
						Chain:          fw.Name,
						Type:           r.Type,
						RemoteIPPrefix: r.RemoteIPPrefix,
						PortRangeMin:   r.PortRangeMin,
						PortRangeMax:   r.PortRangeMax,
						Protocol:       r.Protocol,
					}
					if !hasEntry(ar.Rules, entry) {
						ar.Rules = append(ar.Rules, entry)
					}
				}
			}
		}
	}

	out := make([]AddressRules, 0, len(rules))
	for _, ar := range rules {
		out = append(out, *ar)
	}
	sort.Slice(out, func(i, j int) bool { return address.Less(out[i].Address, out[j].Address) })
	return out
}

func hasEntry(entries []FirewallEntry, e FirewallEntry) bool {
	for _, x := range entries {
		if x == e {
			return true
		}
	}
	return false
}

// WriteFirewall writes firewall.yml
func (w *Writer) WriteFirewall(m *types.Model, res *types.Resolved) error {
	return w.write(FirewallFile, BuildFirewall(m, res))
}
