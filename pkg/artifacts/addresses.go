package artifacts

import (
	"sort"

	"github.com/cuemby/cloudcfg/pkg/address"
	"github.com/cuemby/cloudcfg/pkg/hostname"
	"github.com/cuemby/cloudcfg/pkg/types"
)

// AddressEntry lists the names resolving to one address
type AddressEntry struct {
	Address string   `yaml:"address"`
	Aliases []string `yaml:"aliases"`
}

// AddressMap is the address_map.yml document
type AddressMap struct {
	Addresses []AddressEntry   `yaml:"addresses"`
	Hostnames []hostname.Entry `yaml:"hostnames,omitempty"`
}

// BuildAddressMap collects the aliases of server networks and VIPs by address
func BuildAddressMap(res *types.Resolved, hostnames *hostname.Registry) *AddressMap {
	aliases := make(map[string]map[string]bool)
	add := func(addr string, names ...string) {
		if addr == "" {
			return
		}
		if aliases[addr] == nil {
			aliases[addr] = make(map[string]bool)
		}
		for _, n := range names {
			if n != "" {
				aliases[addr][n] = true
			}
		}
	}

	for _, s := range res.Servers {
		for _, n := range s.Networks {
			if n.Hostname {
				add(n.Address, n.Alias, s.Hostname)
			} else {
				add(n.Address, n.Alias)
			}
		}
	}
	for _, v := range res.VIPs {
		add(v.Address, v.Aliases...)
	}

	out := &AddressMap{}
	for addr, names := range aliases {
		entry := AddressEntry{Address: addr, Aliases: make([]string, 0, len(names))}
		for n := range names {
			entry.Aliases = append(entry.Aliases, n)
		}
		sort.Strings(entry.Aliases)
		out.Addresses = append(out.Addresses, entry)
	}
	sort.Slice(out.Addresses, func(i, j int) bool {
		return address.Less(out.Addresses[i].Address, out.Addresses[j].Address)
	})
	if hostnames != nil {
		out.Hostnames = hostnames.Entries()
	}
	return out
}

// WriteAddressMap writes address_map.yml
func (w *Writer) WriteAddressMap(res *types.Resolved, hostnames *hostname.Registry) error {
	return w.write(AddressMapFile, BuildAddressMap(res, hostnames))
}
