package vip

import (
	"sort"

	"github.com/cuemby/cloudcfg/pkg/network"
	"github.com/cuemby/cloudcfg/pkg/types"
)

// BuildEndpoints fills res.Components with the bind and access endpoints of
// every running component and, for each, the access endpoints of the
// components it consumes. Entries are keyed by "<control-plane>/<component>".
func BuildEndpoints(m *types.Model, res *types.Resolved) {
	for _, cp := range m.ControlPlanes {
		running := runningIn(res, cp.Name)
		for _, c := range running {
			res.Components[types.GroupKey(cp.Name, c)] = endpointsOf(m, res, cp.Name, c)
		}
		for _, c := range running {
			sc, ok := m.Component(c)
			if !ok {
				continue
			}
			ce := res.Components[types.GroupKey(cp.Name, c)]
			for _, dep := range sc.Consumes {
				target, ok := res.Components[types.GroupKey(cp.Name, dep)]
				if !ok {
					continue
				}
				ce.Consumes = append(ce.Consumes, &types.ConsumedEndpoint{Component: dep, Access: target.Access})
			}
		}
	}
}

func endpointsOf(m *types.Model, res *types.Resolved, cp, component string) *types.ComponentEndpoints {
	ce := &types.ComponentEndpoints{}
	sc, ok := m.Component(component)
	if !ok {
		return ce
	}
	groups := network.EndpointGroups(m, component)

	var members []string
	for _, s := range res.ServersRunning(cp, component) {
		for _, g := range groups {
			sn, ok := s.NetworkIn(g)
			if !ok {
				continue
			}
			members = append(members, sn.Alias)
			for _, ep := range sc.Endpoints {
				ce.Bind = append(ce.Bind, &types.BindEndpoint{Host: sn.Alias, Address: sn.Address, Port: ep.Port})
			}
			break
		}
	}
	sort.Strings(members)

	for _, ep := range sc.Endpoints {
		for _, role := range ep.Roles {
			if v, ok := findVIP(res, cp, component, role, ep.Port); ok {
				ce.Access = append(ce.Access, &types.AccessEndpoint{
					Role:    role,
					Host:    v.Aliases[0],
					Address: v.Address,
					Port:    v.VIPPort,
					TLS:     v.TLS,
					Members: members,
				})
				continue
			}
			ce.Access = append(ce.Access, &types.AccessEndpoint{Role: role, Port: ep.Port, Members: members})
		}
	}
	return ce
}

func findVIP(res *types.Resolved, cp, component, role string, port int) (*types.VIP, bool) {
	for _, v := range res.VIPs {
		if v.ControlPlane == cp && v.Component == component && v.Role == role && v.HostPort == port {
			return v, true
		}
	}
	return nil, false
}
