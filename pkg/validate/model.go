package validate

import (
	"github.com/cuemby/cloudcfg/pkg/topology"
	"github.com/cuemby/cloudcfg/pkg/types"
)

func duplicateNames(m *types.Model, _ *topology.Tree, r reporter) {
	var names []string
	collect := func(kind string, fn func(add func(string))) {
		names = names[:0]
		fn(func(s string) { names = append(names, s) })
		dupes(r, kind, names)
	}

	collect("control plane", func(add func(string)) {
		for _, cp := range m.ControlPlanes {
			add(cp.Name)
		}
	})
	for _, cp := range m.ControlPlanes {
		collect("cluster or resource group in control plane "+cp.Name, func(add func(string)) {
			for _, g := range cp.Groups() {
				add(g.Name)
			}
		})
	}
	collect("server id", func(add func(string)) {
		for _, s := range m.Servers {
			add(s.ID)
		}
	})
	collect("network", func(add func(string)) {
		for _, n := range m.Networks {
			add(n.Name)
		}
	})
	collect("network group", func(add func(string)) {
		for _, g := range m.NetworkGroups {
			add(g.Name)
		}
	})
	collect("server role", func(add func(string)) {
		for _, role := range m.ServerRoles {
			add(role.Name)
		}
	})
	collect("server group", func(add func(string)) {
		for _, g := range m.ServerGroups {
			add(g.Name)
		}
	})
	collect("interface model", func(add func(string)) {
		for _, im := range m.InterfaceModels {
			add(im.Name)
		}
	})
	collect("disk model", func(add func(string)) {
		for _, dm := range m.DiskModels {
			add(dm.Name)
		}
	})
	collect("nic mapping", func(add func(string)) {
		for _, nm := range m.NicMappings {
			add(nm.Name)
		}
	})
	collect("service component", func(add func(string)) {
		for _, sc := range m.ServiceComponents {
			add(sc.Name)
		}
	})
	collect("server ip-addr", func(add func(string)) {
		for _, s := range m.Servers {
			if s.IPAddr != "" {
				add(s.IPAddr)
			}
		}
	})
}

// prefixes checks that synthesized hostnames cannot collide
func prefixes(m *types.Model, _ *topology.Tree, r reporter) {
	var cpPrefixes []string
	for _, cp := range m.ControlPlanes {
		p := cp.Prefix
		if p == "" {
			p = cp.Name
		}
		cpPrefixes = append(cpPrefixes, p)

		var clusters, resources []string
		for _, c := range cp.Clusters {
			clusters = append(clusters, c.Prefix())
		}
		for _, res := range cp.Resources {
			resources = append(resources, res.Prefix())
		}
		dupes(r, "cluster-prefix in control plane "+cp.Name, clusters)
		dupes(r, "resource-prefix in control plane "+cp.Name, resources)
	}
	dupes(r, "control-plane-prefix", cpPrefixes)
}

func allocationPolicies(m *types.Model, _ *topology.Tree, r reporter) {
	for _, cp := range m.ControlPlanes {
		for _, g := range cp.Groups() {
			if g.AllocationPolicy != "" && !g.AllocationPolicy.Valid() {
				r.errorf("%s %s has invalid allocation-policy %q (want %s or %s)",
					g.Kind, g.Key(), g.AllocationPolicy, types.AllocationStrict, types.AllocationAny)
			}
			if max := g.Max(); max >= 0 && g.Min() > max {
				r.errorf("%s %s has min-count %d greater than max-count %d", g.Kind, g.Key(), g.Min(), max)
			}
		}
	}
}

// references reports every name that is used but not defined
func references(m *types.Model, _ *topology.Tree, r reporter) {
	roles := set(len(m.ServerRoles))
	for _, x := range m.ServerRoles {
		roles[x.Name] = true
	}
	ims := set(len(m.InterfaceModels))
	for _, x := range m.InterfaceModels {
		ims[x.Name] = true
	}
	dms := set(len(m.DiskModels))
	for _, x := range m.DiskModels {
		dms[x.Name] = true
	}
	nics := set(len(m.NicMappings))
	for _, x := range m.NicMappings {
		nics[x.Name] = true
	}
	ngs := set(len(m.NetworkGroups))
	for _, x := range m.NetworkGroups {
		ngs[x.Name] = true
	}
	nets := set(len(m.Networks))
	for _, x := range m.Networks {
		nets[x.Name] = true
	}
	sgs := set(len(m.ServerGroups))
	for _, x := range m.ServerGroups {
		sgs[x.Name] = true
	}
	comps := set(len(m.ServiceComponents))
	for _, x := range m.ServiceComponents {
		comps[x.Name] = true
	}

	for _, s := range m.Servers {
		if !roles[s.Role] {
			r.errorf("server %s has undefined role %s", s.ID, s.Role)
		}
		if s.ServerGroup != "" && !sgs[s.ServerGroup] {
			r.errorf("server %s is in undefined server group %s", s.ID, s.ServerGroup)
		}
		if s.NicMapping != "" && !nics[s.NicMapping] {
			r.errorf("server %s uses undefined nic-mapping %s", s.ID, s.NicMapping)
		}
	}
	for _, role := range m.ServerRoles {
		if !ims[role.InterfaceModel] {
			r.errorf("server role %s uses undefined interface model %s", role.Name, role.InterfaceModel)
		}
		if role.DiskModel != "" && !dms[role.DiskModel] {
			r.errorf("server role %s uses undefined disk model %s", role.Name, role.DiskModel)
		}
	}
	for _, im := range m.InterfaceModels {
		for _, ni := range im.NetworkInterfaces {
			for _, g := range append(append([]string(nil), ni.NetworkGroups...), ni.ForcedNetworkGroups...) {
				if !ngs[g] {
					r.errorf("interface %s of interface model %s uses undefined network group %s", ni.Name, im.Name, g)
				}
			}
		}
	}
	for _, n := range m.Networks {
		if !ngs[n.NetworkGroup] {
			r.errorf("network %s belongs to undefined network group %s", n.Name, n.NetworkGroup)
		}
	}
	for _, sg := range m.ServerGroups {
		for _, n := range sg.Networks {
			if !nets[n] {
				r.errorf("server group %s lists undefined network %s", sg.Name, n)
			}
		}
	}
	for _, fw := range m.FirewallRules {
		for _, g := range fw.NetworkGroups {
			if !ngs[g] {
				r.errorf("firewall rule %s applies to undefined network group %s", fw.Name, g)
			}
		}
	}

	component := func(where, c string) {
		if len(comps) > 0 && !comps[c] {
			r.errorf("%s uses undefined service component %s", where, c)
		}
	}
	for _, ng := range m.NetworkGroups {
		for _, c := range ng.ComponentEndpoints {
			if c != types.DefaultEndpoints {
				component("component-endpoints of network group "+ng.Name, c)
			}
		}
		for _, lb := range ng.LoadBalancers {
			if lb.Provider != types.ExternalProvider {
				component("load balancer "+lb.Name+" provider", lb.Provider)
			}
			for _, c := range lb.Components {
				if c != types.DefaultEndpoints {
					component("load balancer "+lb.Name, c)
				}
			}
		}
	}
	for _, sc := range m.ServiceComponents {
		for _, c := range sc.Consumes {
			component("service component "+sc.Name+" consumes", c)
		}
	}

	for _, cp := range m.ControlPlanes {
		zone := func(where, z string) {
			if !sgs[z] {
				r.errorf("%s lists undefined failure zone %s", where, z)
			}
		}
		for _, z := range cp.FailureZones {
			zone("control plane "+cp.Name, z)
		}
		for _, c := range cp.CommonServiceComponents {
			component("control plane "+cp.Name, c)
		}
		for _, g := range cp.Groups() {
			if len(g.ServerRoles) == 0 {
				r.errorf("%s %s has no server-role", g.Kind, g.Key())
			}
			for _, role := range g.ServerRoles {
				if !roles[role] {
					r.errorf("%s %s uses undefined server role %s", g.Kind, g.Key(), role)
				}
			}
			for _, z := range g.FailureZones {
				zone(string(g.Kind)+" "+g.Key(), z)
			}
			for _, c := range g.ServiceComponents {
				component(string(g.Kind)+" "+g.Key(), c)
			}
		}
	}
}

func set(n int) map[string]bool {
	return make(map[string]bool, n)
}

// emptyNetworkGroups reports groups that something needs but that hold no network
func emptyNetworkGroups(m *types.Model, _ *topology.Tree, r reporter) {
	for _, ng := range m.NetworkGroups {
		if len(m.NetworksInGroup(ng.Name)) > 0 {
			continue
		}
		if len(ng.ComponentEndpoints) > 0 || len(ng.LoadBalancers) > 0 {
			r.errorf("network group %s has component endpoints or load balancers but no networks", ng.Name)
		}
	}
}

func serverGroups(m *types.Model, tree *topology.Tree, r reporter) {
	for _, err := range topology.CheckHierarchy(m.ServerGroups) {
		r.errorf("%v", err)
	}
	if !tree.InUse() {
		return
	}
	for _, s := range m.Servers {
		if !tree.Covered(s.ID) {
			r.errorf("server %s is not in any server group", s.ID)
		}
	}
}

// orphanServers warns about servers no cluster or resource group can take
func orphanServers(m *types.Model, tree *topology.Tree, r reporter) {
	for _, s := range m.Servers {
		if !claimable(m, tree, s) {
			r.warnf("server %s (role %s) cannot be allocated by any cluster or resource group", s.ID, s.Role)
		}
	}
}

func claimable(m *types.Model, tree *topology.Tree, s *types.Server) bool {
	for _, cp := range m.ControlPlanes {
		for _, g := range cp.Groups() {
			if !g.ServerRoles.Contains(s.Role) {
				continue
			}
			zones := g.FailureZones
			if len(zones) == 0 {
				zones = cp.FailureZones
			}
			if len(zones) == 0 || tree.GetZone(zones, s.ID, "") != "" {
				return true
			}
		}
	}
	return false
}
