package network

import (
	"github.com/cuemby/cloudcfg/pkg/types"
)

// via records why a component needs a network group
type via int

const (
	viaEndpoint via = iota
	viaDefault
	viaTag
)

type requirement struct {
	group string
	via   via
	tag   types.NetworkTagReq
}

// EndpointGroups returns the network groups a component exposes endpoints on:
// the groups naming it in component-endpoints, otherwise the groups naming
// "default".
func EndpointGroups(m *types.Model, component string) []string {
	var explicit, fallback []string
	for _, ng := range m.NetworkGroups {
		for _, c := range ng.ComponentEndpoints {
			switch c {
			case component:
				explicit = append(explicit, ng.Name)
			case types.DefaultEndpoints:
				fallback = append(fallback, ng.Name)
			}
		}
	}
	if len(explicit) > 0 {
		return explicit
	}
	return fallback
}

// requirements lists every network group a component needs, endpoints first
func requirements(m *types.Model, component string) []requirement {
	var reqs []requirement
	v := viaEndpoint
	groups := EndpointGroups(m, component)
	if !explicitlyListed(m, component) {
		v = viaDefault
	}
	for _, g := range groups {
		reqs = append(reqs, requirement{group: g, via: v})
	}

	comp, ok := m.Component(component)
	if !ok {
		return reqs
	}
	for _, tr := range comp.NetworkTags {
		for _, ng := range m.NetworkGroups {
			for _, tag := range ng.Tags {
				if tag.Name == tr.Name {
					reqs = append(reqs, requirement{group: ng.Name, via: viaTag, tag: tr})
				}
			}
		}
	}
	return reqs
}

func explicitlyListed(m *types.Model, component string) bool {
	for _, ng := range m.NetworkGroups {
		for _, c := range ng.ComponentEndpoints {
			if c == component {
				return true
			}
		}
	}
	return false
}

// components returns the service components run by members of a group
func components(cp *types.ControlPlane, g *types.Cluster) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{cp.CommonServiceComponents, g.ServiceComponents} {
		for _, c := range list {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
