package vip

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cloudcfg/pkg/address"
	"github.com/cuemby/cloudcfg/pkg/diag"
	"github.com/cuemby/cloudcfg/pkg/hostname"
	"github.com/cuemby/cloudcfg/pkg/storage"
	"github.com/cuemby/cloudcfg/pkg/types"
)

func fixture(lbs ...*types.LoadBalancer) *types.Model {
	return &types.Model{
		ControlPlanes: []*types.ControlPlane{{Name: "cp1", RegionName: "r1"}},
		Servers: []*types.Server{
			{ID: "s1", Role: "controller", IPAddr: "10.0.0.10"},
			{ID: "s2", Role: "controller", IPAddr: "10.0.0.11"},
		},
		NetworkGroups: []*types.NetworkGroup{{
			Name:               "MANAGEMENT",
			ComponentEndpoints: []string{types.DefaultEndpoints},
			LoadBalancers:      lbs,
		}},
		Networks: []*types.Network{
			{Name: "MGMT-NET", NetworkGroup: "MANAGEMENT", CIDR: "10.0.0.0/24", GatewayIP: "10.0.0.1"},
			{Name: "MGMT-NET2", NetworkGroup: "MANAGEMENT", CIDR: "10.0.1.0/24"},
		},
		ServiceComponents: []*types.ServiceComponent{
			{Name: "api", Endpoints: []types.Endpoint{{
				Port: 5000, VIPPort: 15000, HasVIP: true, TLSTerminator: true,
				Roles: []string{"public", "internal"}, HealthCheck: "/healthcheck",
			}}},
			{Name: "db", Consumes: []string{"api"}, Endpoints: []types.Endpoint{{Port: 3306, HasVIP: true, Roles: []string{"internal"}}}},
		},
	}
}

func resolved() *types.Resolved {
	res := types.NewResolved("run", "cloud")
	comps := []string{"haproxy", "api", "db"}
	res.Groups = []*types.ResolvedGroup{{
		Name: "c1", ControlPlane: "cp1", Kind: types.GroupKindCluster, Components: comps,
		Members: []*types.Member{{ServerID: "s1", MemberID: 1}, {ServerID: "s2", MemberID: 2}},
	}}
	for i, id := range []string{"s1", "s2"} {
		res.Servers = append(res.Servers, &types.ResolvedServer{
			ID: id, ControlPlane: "cp1", Group: "c1", Components: comps,
			Networks: []*types.ServerNetwork{{
				Network:      "MGMT-NET",
				NetworkGroup: "MANAGEMENT",
				Address:      []string{"10.0.0.10", "10.0.0.11"}[i],
				Alias:        id + "-mgmt",
			}},
		})
	}
	return res
}

func resolveVIPs(t *testing.T, m *types.Model, res *types.Resolved) *diag.Diagnostics {
	t.Helper()
	return resolveInto(t, storage.NewMemoryStore(), m, res)
}

func resolveInto(t *testing.T, store storage.Store, m *types.Model, res *types.Resolved) *diag.Diagnostics {
	t.Helper()
	m.Normalize()
	addrs, err := address.NewAllocator(store, m.Servers)
	require.NoError(t, err)
	d := diag.New(zerolog.Nop())
	require.NoError(t, NewResolver(m, addrs, hostname.NewRegistry(), d).Resolve(res))
	return d
}

// addControlPlane adds a control plane with one single-member cluster on
// MGMT-NET running comps
func addControlPlane(m *types.Model, res *types.Resolved, name, ip string, comps ...string) {
	id := name + "-s1"
	m.ControlPlanes = append(m.ControlPlanes, &types.ControlPlane{Name: name, RegionName: "r1"})
	m.Servers = append(m.Servers, &types.Server{ID: id, Role: "controller", IPAddr: ip})
	res.Groups = append(res.Groups, &types.ResolvedGroup{
		Name: "c1", ControlPlane: name, Kind: types.GroupKindCluster, Components: comps,
		Members: []*types.Member{{ServerID: id, MemberID: 1}},
	})
	res.Servers = append(res.Servers, &types.ResolvedServer{
		ID: id, ControlPlane: name, Group: "c1", Components: comps,
		Networks: []*types.ServerNetwork{{
			Network: "MGMT-NET", NetworkGroup: "MANAGEMENT", Address: ip, Alias: id + "-mgmt",
		}},
	})
}

func vipsIn(vips []*types.VIP, cp string) []*types.VIP {
	var out []*types.VIP
	for _, v := range vips {
		if v.ControlPlane == cp {
			out = append(out, v)
		}
	}
	return out
}

type key struct{ component, role, lb string }

func byKey(vips []*types.VIP) map[key]*types.VIP {
	out := make(map[key]*types.VIP)
	for _, v := range vips {
		out[key{v.Component, v.Role, v.LoadBalancer}] = v
	}
	return out
}

func TestSharedVIP(t *testing.T) {
	m := fixture(&types.LoadBalancer{
		Name: "lb", Provider: "haproxy", Roles: []string{"public", "internal"},
		Components: []string{"api", types.DefaultEndpoints}, CertFile: "cert.pem", ExternalName: "api.example.com",
	})
	res := resolved()
	d := resolveVIPs(t, m, res)
	assert.Empty(t, d.Errors())

	require.Len(t, res.VIPs, 3)
	vips := byKey(res.VIPs)

	pub := vips[key{"api", "public", "lb"}]
	require.NotNil(t, pub)
	assert.Equal(t, "10.0.0.2", pub.Address, "first free address after gateway")
	assert.Equal(t, "MGMT-NET", pub.Network)
	assert.Equal(t, 5000, pub.HostPort)
	assert.Equal(t, 15000, pub.VIPPort, "TLS terminated at the load balancer")
	assert.Equal(t, "cert.pem", pub.CertFile)
	assert.Equal(t, "/healthcheck", pub.HealthCheck)
	assert.Equal(t, []string{"cp1-vip-public-api", "api.example.com"}, pub.Aliases)
	assert.False(t, pub.Implicit)

	db := vips[key{"db", "internal", "lb"}]
	require.NotNil(t, db)
	assert.True(t, db.Implicit)
	assert.Equal(t, "10.0.0.2", db.Address, "shared address")
	assert.Equal(t, 3306, db.VIPPort)
	assert.Empty(t, db.CertFile)
}

func TestPerComponentVIP(t *testing.T) {
	shared := false
	m := fixture(&types.LoadBalancer{
		Name: "lb", Provider: "haproxy", Components: []string{"api", "db"}, SharedAddress: &shared,
	})
	res := resolved()
	d := resolveVIPs(t, m, res)
	assert.Empty(t, d.Errors())

	vips := byKey(res.VIPs)
	assert.Equal(t, "10.0.0.2", vips[key{"api", "public", "lb"}].Address)
	assert.Equal(t, "10.0.0.2", vips[key{"api", "internal", "lb"}].Address)
	assert.Equal(t, "10.0.0.3", vips[key{"db", "internal", "lb"}].Address)
}

func TestExplicitRolesPruneDefault(t *testing.T) {
	m := fixture(
		&types.LoadBalancer{Name: "lb-ext", Provider: "haproxy", Roles: []string{"public"}, Components: []string{"api"}},
		&types.LoadBalancer{Name: "lb-int", Provider: "haproxy", Roles: []string{"public", "internal"}, Components: []string{types.DefaultEndpoints}},
	)
	res := resolved()
	d := resolveVIPs(t, m, res)
	assert.Empty(t, d.Errors())

	vips := byKey(res.VIPs)
	assert.Contains(t, vips, key{"api", "public", "lb-ext"})
	assert.NotContains(t, vips, key{"api", "public", "lb-int"}, "explicitly claimed elsewhere")
	assert.Contains(t, vips, key{"api", "internal", "lb-int"})
	assert.Contains(t, vips, key{"db", "internal", "lb-int"})
}

func TestProviderResolution(t *testing.T) {
	tests := []struct {
		name    string
		lb      *types.LoadBalancer
		mutate  func(res *types.Resolved)
		address string
		errors  int
	}{
		{
			name:    "external endpoint for region",
			lb:      &types.LoadBalancer{Name: "lb", Provider: types.ExternalProvider, Components: []string{"db"}, ExternalEndpoints: map[string]string{"r1": "203.0.113.10"}},
			address: "203.0.113.10",
		},
		{
			name:   "external endpoint missing",
			lb:     &types.LoadBalancer{Name: "lb", Provider: types.ExternalProvider, Components: []string{"db"}, ExternalEndpoints: map[string]string{"r2": "203.0.113.10"}},
			errors: 1,
		},
		{
			name:   "no provider servers",
			lb:     &types.LoadBalancer{Name: "lb", Provider: "nginx", Components: []string{"db"}},
			errors: 1,
		},
		{
			name: "providers split across networks",
			lb:   &types.LoadBalancer{Name: "lb", Provider: "haproxy", Components: []string{"db"}},
			mutate: func(res *types.Resolved) {
				res.Servers[1].Networks[0].Network = "MGMT-NET2"
			},
			errors: 1,
		},
		{
			name:   "undefined component",
			lb:     &types.LoadBalancer{Name: "lb", Provider: "haproxy", Components: []string{"missing"}},
			errors: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := resolved()
			if tt.mutate != nil {
				tt.mutate(res)
			}
			d := resolveVIPs(t, fixture(tt.lb), res)
			assert.Len(t, d.Errors(), tt.errors)
			if tt.address != "" {
				require.Len(t, res.VIPs, 1)
				assert.Equal(t, tt.address, res.VIPs[0].Address)
				assert.Empty(t, res.VIPs[0].Network)
			}
		})
	}
}

func TestBuildEndpoints(t *testing.T) {
	m := fixture(&types.LoadBalancer{
		Name: "lb", Provider: "haproxy", Roles: []string{"public", "internal"}, Components: []string{"api"},
	})
	res := resolved()
	resolveVIPs(t, m, res)
	BuildEndpoints(m, res)

	api := res.Components["cp1/api"]
	require.NotNil(t, api)
	require.Len(t, api.Bind, 2)
	assert.Equal(t, types.BindEndpoint{Host: "s1-mgmt", Address: "10.0.0.10", Port: 5000}, *api.Bind[0])
	require.Len(t, api.Access, 2)
	assert.Equal(t, "public", api.Access[0].Role)
	assert.Equal(t, "cp1-vip-public-api", api.Access[0].Host)
	assert.Equal(t, 15000, api.Access[0].Port)
	assert.True(t, api.Access[0].TLS)
	assert.Equal(t, []string{"s1-mgmt", "s2-mgmt"}, api.Access[0].Members)

	db := res.Components["cp1/db"]
	require.NotNil(t, db)
	require.Len(t, db.Access, 1)
	assert.Empty(t, db.Access[0].Address, "no VIP: clients use the members directly")
	require.Len(t, db.Consumes, 1)
	assert.Equal(t, "api", db.Consumes[0].Component)
	assert.Equal(t, api.Access, db.Consumes[0].Access)

	assert.Contains(t, res.Components, "cp1/haproxy")
}

func TestMultipleControlPlanes(t *testing.T) {
	sharedLB := func() *types.LoadBalancer {
		return &types.LoadBalancer{
			Name: "lb", Provider: "haproxy", Roles: []string{"internal"},
			Components: []string{types.DefaultEndpoints},
		}
	}
	tests := []struct {
		name     string
		comps    []string
		errors   []string
		cp2VIPs  int
		cp2Addrs []string
	}{
		{
			name:  "second control plane runs nothing behind the load balancer",
			comps: []string{"agent"},
		},
		{
			name:     "second control plane runs its own provider",
			comps:    []string{"haproxy", "db"},
			cp2VIPs:  1,
			cp2Addrs: []string{"10.0.0.3"},
		},
		{
			name:   "fronted component without a provider",
			comps:  []string{"db"},
			errors: []string{"no server in control plane cp2 runs haproxy"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := fixture(sharedLB())
			m.ServiceComponents = append(m.ServiceComponents, &types.ServiceComponent{Name: "agent", Consumes: []string{"api"}})
			res := resolved()
			addControlPlane(m, res, "cp2", "10.0.0.12", tt.comps...)

			d := resolveVIPs(t, m, res)
			require.Len(t, d.Errors(), len(tt.errors))
			for i, msg := range tt.errors {
				assert.Contains(t, d.Errors()[i].Message, msg)
			}

			cp1 := vipsIn(res.VIPs, "cp1")
			require.Len(t, cp1, 2, "api and db behind cp1's load balancer")
			assert.Equal(t, "10.0.0.2", cp1[0].Address)

			cp2 := vipsIn(res.VIPs, "cp2")
			require.Len(t, cp2, tt.cp2VIPs)
			for i, addr := range tt.cp2Addrs {
				assert.Equal(t, addr, cp2[i].Address)
				assert.Equal(t, []string{"cp2-vip-internal-db"}, cp2[i].Aliases)
			}
		})
	}
}

func TestExplicitComponentNotRunning(t *testing.T) {
	shared := false
	m := fixture(&types.LoadBalancer{
		Name: "lb", Provider: "haproxy", Components: []string{"api", "db"}, SharedAddress: &shared,
	})
	res := resolved()
	res.Groups[0].Components = []string{"haproxy", "api"}
	for _, s := range res.Servers {
		s.Components = []string{"haproxy", "api"}
	}

	d := resolveVIPs(t, m, res)
	assert.Empty(t, d.Errors())

	vips := byKey(res.VIPs)
	assert.Contains(t, vips, key{"api", "internal", "lb"})
	assert.NotContains(t, vips, key{"db", "internal", "lb"}, "no backend runs db")
	for _, v := range res.VIPs {
		assert.Equal(t, "10.0.0.2", v.Address)
	}
}

func TestPrunedRolesTakeNoAddress(t *testing.T) {
	shared := false
	m := fixture(
		&types.LoadBalancer{Name: "lb-ext", Provider: "haproxy", Roles: []string{"public"}, Components: []string{"api"}, SharedAddress: &shared},
		&types.LoadBalancer{Name: "lb-int", Provider: "haproxy", Roles: []string{"public"}, Components: []string{types.DefaultEndpoints}, SharedAddress: &shared},
	)
	store := storage.NewMemoryStore()
	res := resolved()
	d := resolveInto(t, store, m, res)
	assert.Empty(t, d.Errors())

	require.Len(t, res.VIPs, 1)
	assert.Equal(t, "lb-ext", res.VIPs[0].LoadBalancer)

	doc, err := store.Document(types.NamespaceAddresses)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.2"}, storage.SortedKeys(doc), "lb-int keeps no address for the pruned api role")
}
