package vip

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/cuemby/cloudcfg/pkg/address"
	"github.com/cuemby/cloudcfg/pkg/diag"
	"github.com/cuemby/cloudcfg/pkg/hostname"
	"github.com/cuemby/cloudcfg/pkg/log"
	"github.com/cuemby/cloudcfg/pkg/types"
)

// Source tags diagnostics recorded by the VIP resolver
const Source = "load-balancer"

// UsedByVIP is the address consumer tag of virtual addresses
const UsedByVIP = "vip"

// Resolver builds VIP records for every load balancer
type Resolver struct {
	model     *types.Model
	addresses *address.Allocator
	hostnames *hostname.Registry
	diag      *diag.Diagnostics
	logger    zerolog.Logger
}

// NewResolver creates a VIP resolver
func NewResolver(m *types.Model, addresses *address.Allocator, hostnames *hostname.Registry, d *diag.Diagnostics) *Resolver {
	return &Resolver{
		model:     m,
		addresses: addresses,
		hostnames: hostnames,
		diag:      d,
		logger:    log.WithComponent("vip"),
	}
}

// provider is where a load balancer's VIPs live
type provider struct {
	network  *types.Network
	external string
}

// candidate is one (component, role) a load balancer fronts in a control
// plane, before it is given an address
type candidate struct {
	ng       *types.NetworkGroup
	lb       *types.LoadBalancer
	p        provider
	sc       *types.ServiceComponent
	ep       types.Endpoint
	role     string
	implicit bool
}

// Resolve appends the VIPs of every control plane to res.VIPs. A load
// balancer only takes part in control planes running a component it fronts.
func (r *Resolver) Resolve(res *types.Resolved) error {
	r.checkComponents()
	for _, cp := range r.model.ControlPlanes {
		running := runningIn(res, cp.Name)
		var cands []candidate
		for _, ng := range r.model.NetworkGroups {
			for _, lb := range ng.LoadBalancers {
				wanted := r.candidates(ng, lb, running)
				if len(wanted) == 0 {
					continue
				}
				p, ok := r.provider(res, cp, ng, lb)
				if !ok {
					continue
				}
				for i := range wanted {
					wanted[i].p = p
				}
				cands = append(cands, wanted...)
			}
		}
		vips, err := r.balance(cp, prune(cands))
		if err != nil {
			return err
		}
		res.VIPs = append(res.VIPs, vips...)
	}
	return nil
}

// checkComponents reports explicit load-balancer entries naming no component
func (r *Resolver) checkComponents() {
	for _, ng := range r.model.NetworkGroups {
		for _, lb := range ng.LoadBalancers {
			for _, c := range lb.Components {
				if c == types.DefaultEndpoints {
					continue
				}
				if _, ok := r.model.Component(c); !ok {
					r.diag.Errorf(Source, "load balancer %s serves undefined component %s", lb.Name, c)
				}
			}
		}
	}
}

func (r *Resolver) provider(res *types.Resolved, cp *types.ControlPlane, ng *types.NetworkGroup, lb *types.LoadBalancer) (provider, bool) {
	if lb.Provider == types.ExternalProvider {
		addr, ok := lb.ExternalEndpoints[cp.RegionName]
		if !ok {
			r.diag.Errorf(Source, "external load balancer %s has no endpoint for region %q of control plane %s",
				lb.Name, cp.RegionName, cp.Name)
			return provider{}, false
		}
		return provider{external: addr}, true
	}

	servers := res.ServersRunning(cp.Name, lb.Provider)
	if len(servers) == 0 {
		r.diag.Errorf(Source, "no server in control plane %s runs %s, the provider of load balancer %s",
			cp.Name, lb.Provider, lb.Name)
		return provider{}, false
	}
	nets := make(map[string]bool)
	for _, s := range servers {
		sn, ok := s.NetworkIn(ng.Name)
		if !ok {
			r.diag.Errorf(Source, "server %s provides load balancer %s but is not attached to network group %s",
				s.ID, lb.Name, ng.Name)
			return provider{}, false
		}
		nets[sn.Network] = true
	}
	if len(nets) > 1 {
		names := make([]string, 0, len(nets))
		for n := range nets {
			names = append(names, n)
		}
		sort.Strings(names)
		r.diag.Errorf(Source, "providers of load balancer %s in control plane %s are split across networks %v",
			lb.Name, cp.Name, names)
		return provider{}, false
	}
	for name := range nets {
		n, _ := r.model.Network(name)
		return provider{network: n}, true
	}
	return provider{}, false
}

// served lists the running components a load balancer fronts. Components
// pulled in by the "default" entry are marked implicit.
func served(lb *types.LoadBalancer, running []string) (names []string, implicit map[string]bool) {
	isRunning := make(map[string]bool, len(running))
	for _, c := range running {
		isRunning[c] = true
	}
	implicit = make(map[string]bool)
	explicit := make(map[string]bool)
	for _, c := range lb.Components {
		if c != types.DefaultEndpoints && isRunning[c] && !explicit[c] {
			explicit[c] = true
			names = append(names, c)
		}
	}
	for _, c := range lb.Components {
		if c != types.DefaultEndpoints {
			continue
		}
		for _, rc := range running {
			if !explicit[rc] && !implicit[rc] {
				implicit[rc] = true
				names = append(names, rc)
			}
		}
	}
	return names, implicit
}

// candidates expands the served components into their VIP endpoint roles
func (r *Resolver) candidates(ng *types.NetworkGroup, lb *types.LoadBalancer, running []string) []candidate {
	names, implicit := served(lb, running)
	var out []candidate
	for _, name := range names {
		sc, ok := r.model.Component(name)
		if !ok {
			continue
		}
		for _, ep := range sc.Endpoints {
			if !ep.HasVIP {
				continue
			}
			for _, role := range roles(ep, lb) {
				out = append(out, candidate{ng: ng, lb: lb, sc: sc, ep: ep, role: role, implicit: implicit[name]})
			}
		}
	}
	return out
}

// balance gives every candidate its address. A load balancer whose address
// cannot be allocated is skipped for the rest of the control plane.
func (r *Resolver) balance(cp *types.ControlPlane, cands []candidate) ([]*types.VIP, error) {
	failed := make(map[*types.LoadBalancer]bool)
	var vips []*types.VIP
	for _, c := range cands {
		if failed[c.lb] {
			continue
		}
		addr, ok, err := r.address(cp, c.lb, c.p, c.sc.Name)
		if err != nil {
			return nil, fmt.Errorf("load balancer %s: %w", c.lb.Name, err)
		}
		if !ok {
			failed[c.lb] = true
			continue
		}
		vips = append(vips, r.record(cp, c, addr))
	}
	return vips, nil
}

// roles intersects an endpoint's roles with the roles a load balancer serves
func roles(ep types.Endpoint, lb *types.LoadBalancer) []string {
	if len(lb.Roles) == 0 {
		return ep.Roles
	}
	var out []string
	for _, role := range ep.Roles {
		for _, lr := range lb.Roles {
			if role == lr {
				out = append(out, role)
				break
			}
		}
	}
	return out
}

// address returns the VIP of a load balancer, or of one of its components
// when the address is not shared
func (r *Resolver) address(cp *types.ControlPlane, lb *types.LoadBalancer, p provider, component string) (string, bool, error) {
	if p.external != "" {
		return p.external, true, nil
	}
	if p.network.CIDR == "" {
		r.diag.Errorf(Source, "load balancer %s: network %s has no cidr to allocate a VIP from", lb.Name, p.network.Name)
		return "", false, nil
	}
	pool, err := r.addresses.GeneratePool(p.network)
	if err != nil {
		r.diag.Errorf(Source, "%v", err)
		return "", false, nil
	}

	host := cp.Name + ":" + lb.Name
	if !lb.Shared() {
		host += ":" + component
	}
	addr, err := r.addresses.Allocate(pool, address.Request{UsedBy: UsedByVIP, Host: host})
	switch {
	case errors.Is(err, address.ErrPoolExhausted):
		r.diag.Errorf(Source, "%v", err)
		return "", false, nil
	case err != nil:
		return "", false, err
	}
	return addr, true, nil
}

func (r *Resolver) record(cp *types.ControlPlane, c candidate, addr string) *types.VIP {
	lb, sc, ep := c.lb, c.sc, c.ep
	v := &types.VIP{
		Component:    sc.Name,
		LoadBalancer: lb.Name,
		Provider:     lb.Provider,
		ControlPlane: cp.Name,
		NetworkGroup: c.ng.Name,
		Address:      addr,
		HostPort:     ep.Port,
		VIPPort:      ep.Port,
		Role:         c.role,
		TLS:          ep.TLSTerminator,
		HealthCheck:  ep.HealthCheck,
		BackupMode:   ep.BackupMode,
		Implicit:     c.implicit,
	}
	if c.p.network != nil {
		v.Network = c.p.network.Name
	}
	if ep.TLSTerminator {
		if ep.VIPPort != 0 {
			v.VIPPort = ep.VIPPort
		}
		v.CertFile = lb.CertFile
	}

	alias, prev := r.hostnames.Register(r.aliasName(cp, c.role, sc), "vip:"+cp.Name+":"+lb.Name)
	if prev != "" && !strings.HasPrefix(prev, "vip:"+cp.Name+":") {
		r.diag.Warnf(Source, "VIP alias %s replaces the one registered by %s", alias, prev)
	}
	v.Aliases = append(v.Aliases, alias)
	if lb.ExternalName != "" {
		v.Aliases = append(v.Aliases, lb.ExternalName)
	}

	logger := log.WithControlPlane(r.logger, cp.Name)
	logger.Debug().
		Str("load_balancer", lb.Name).
		Str("component", sc.Name).
		Str("role", c.role).
		Str("address", addr).
		Msg("VIP resolved")
	return v
}

func (r *Resolver) aliasName(cp *types.ControlPlane, role string, sc *types.ServiceComponent) string {
	parts := make([]string, 0, 5)
	if p := r.model.Cloud.HostnameData.HostPrefix; p != "" {
		parts = append(parts, p)
	}
	if cp.Prefix != "" {
		parts = append(parts, cp.Prefix)
	} else {
		parts = append(parts, cp.Name)
	}
	return strings.Join(append(parts, "vip", role, sc.Short()), "-")
}

// prune drops roles of implicitly served components that the same component
// also claims explicitly
func prune(cands []candidate) []candidate {
	claimed := make(map[string]bool)
	for _, c := range cands {
		if !c.implicit {
			claimed[c.sc.Name+"/"+c.role] = true
		}
	}
	out := cands[:0:0]
	for _, c := range cands {
		if c.implicit && claimed[c.sc.Name+"/"+c.role] {
			continue
		}
		out = append(out, c)
	}
	return out
}

// runningIn lists the components run in a control plane, in group order
func runningIn(res *types.Resolved, cp string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, g := range res.Groups {
		if g.ControlPlane != cp || len(g.Members) == 0 {
			continue
		}
		for _, c := range g.Components {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}
