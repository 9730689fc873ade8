package network

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cuemby/cloudcfg/pkg/types"
)

// Routes derives the routing table of every attached server network.
// Tables are computed once per network that some server uses, then pruned
// per server so that an explicit route to a network the server already
// reaches directly or through a same-group route is not emitted.
func (r *Resolver) Routes(res *types.Resolved) {
	used := make(map[string]bool)
	for _, s := range res.Servers {
		for _, sn := range s.Networks {
			used[sn.Network] = true
		}
	}

	tables := make(map[string][]types.Route)
	reported := make(map[string]bool)
	for _, n := range r.model.Networks {
		if !used[n.Name] {
			continue
		}
		var routes []types.Route
		for _, other := range r.model.NetworksInGroup(n.NetworkGroup) {
			if other.Name == n.Name || other.CIDR == "" {
				continue
			}
			routes = append(routes, types.Route{Network: other.Name, CIDR: other.CIDR, Gateway: n.GatewayIP, Implicit: true})
		}

		ng, ok := r.model.NetworkGroup(n.NetworkGroup)
		if ok {
			for _, target := range ng.Routes {
				if target == types.DefaultRoute {
					routes = append(routes, types.Route{CIDR: types.DefaultCIDR, Gateway: n.GatewayIP, Default: true})
					continue
				}
				if _, ok := r.model.NetworkGroup(target); !ok {
					if key := ng.Name + "->" + target; !reported[key] {
						reported[key] = true
						r.diag.Errorf(Source, "network group %s routes to undefined network group %s", ng.Name, target)
					}
					continue
				}
				for _, dst := range r.model.NetworksInGroup(target) {
					if dst.CIDR == "" || dst.Name == n.Name {
						continue
					}
					routes = append(routes, types.Route{Network: dst.Name, CIDR: dst.CIDR, Gateway: n.GatewayIP})
				}
			}
		}
		tables[n.Name] = routes
	}

	for _, s := range res.Servers {
		reach := make(map[string]bool)
		for _, sn := range s.Networks {
			reach[sn.Network] = true
			for _, other := range r.model.NetworksInGroup(sn.NetworkGroup) {
				reach[other.Name] = true
			}
		}

		emitted := make(map[string]bool)
		for _, sn := range s.Networks {
			sn.Routes = nil
			for _, rt := range tables[sn.Network] {
				if !rt.Implicit && !rt.Default && reach[rt.Network] {
					continue
				}
				if !rt.Implicit && emitted[rt.CIDR] {
					continue
				}
				emitted[rt.CIDR] = true
				route := rt
				sn.Routes = append(sn.Routes, &route)
			}
		}
	}
}

// reachability of one server network from another server
type reachability int

const (
	reachDirect reachability = iota
	reachDefault
	reachNone
)

// CheckDependencies verifies that every server running a component can reach
// the servers running the components it consumes. A dependency reachable only
// through a default route is a warning naming the server pairs; one not
// reachable at all is an error.
func (r *Resolver) CheckDependencies(res *types.Resolved) {
	defaultOnly := make(map[string][]string)
	missing := make(map[string][]string)

	for _, x := range res.Servers {
		for _, c := range x.Components {
			comp, ok := r.model.Component(c)
			if !ok {
				continue
			}
			for _, dep := range comp.Consumes {
				groups := EndpointGroups(r.model, dep)
				providers := res.ServersRunning(x.ControlPlane, dep)
				if len(providers) == 0 {
					providers = serversRunning(res, dep)
				}
				key := c + " -> " + dep
				for _, y := range providers {
					if y.ID == x.ID {
						continue
					}
					pair := fmt.Sprintf("%s->%s", x.Hostname, y.Hostname)
					switch reachOf(x, y, groups) {
					case reachDefault:
						defaultOnly[key] = append(defaultOnly[key], pair)
					case reachNone:
						missing[key] = append(missing[key], pair)
					}
				}
			}
		}
	}

	for _, key := range sortedKeys(defaultOnly) {
		r.diag.Warnf(Source, "%s is only reachable through the default route: %s", key, strings.Join(defaultOnly[key], ", "))
	}
	for _, key := range sortedKeys(missing) {
		r.diag.Errorf(Source, "%s has no route: %s", key, strings.Join(missing[key], ", "))
	}
}

func reachOf(x, y *types.ResolvedServer, groups []string) reachability {
	var targets []*types.ServerNetwork
	for _, g := range groups {
		if sn, ok := y.NetworkIn(g); ok {
			targets = append(targets, sn)
		}
	}
	if len(targets) == 0 {
		return reachDirect
	}

	best := reachNone
	for _, t := range targets {
		if _, ok := x.OnNetwork(t.Network); ok {
			return reachDirect
		}
		for _, sn := range x.Networks {
			for _, rt := range sn.Routes {
				if rt.Network == t.Network {
					return reachDirect
				}
				if rt.Default {
					best = reachDefault
				}
			}
		}
	}
	return best
}

func serversRunning(res *types.Resolved, component string) []*types.ResolvedServer {
	var out []*types.ResolvedServer
	for _, s := range res.Servers {
		if s.Runs(component) {
			out = append(out, s)
		}
	}
	return out
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
