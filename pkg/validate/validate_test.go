package validate

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cloudcfg/pkg/diag"
	"github.com/cuemby/cloudcfg/pkg/topology"
	"github.com/cuemby/cloudcfg/pkg/types"
)

func validModel() *types.Model {
	return &types.Model{
		ControlPlanes: []*types.ControlPlane{{
			Name:         "cp1",
			FailureZones: []string{"AZ1"},
			Clusters: []*types.Cluster{{
				Name: "c1", ServerRoles: types.StringList{"controller"}, ServiceComponents: []string{"api"},
			}},
			Resources: []*types.Cluster{{
				Name: "compute", ServerRoles: types.StringList{"compute"},
			}},
		}},
		Servers: []*types.Server{
			{ID: "s1", Role: "controller", ServerGroup: "AZ1", IPAddr: "10.0.0.10"},
			{ID: "n1", Role: "compute", ServerGroup: "AZ1", IPAddr: "10.0.0.11"},
		},
		ServerGroups: []*types.ServerGroup{{Name: "AZ1", Networks: []string{"MGMT-NET"}}},
		ServerRoles: []*types.ServerRole{
			{Name: "controller", InterfaceModel: "if"},
			{Name: "compute", InterfaceModel: "if"},
		},
		InterfaceModels: []*types.InterfaceModel{{
			Name:              "if",
			NetworkInterfaces: []types.NetworkInterface{{Name: "eth0", NetworkGroups: []string{"MANAGEMENT"}}},
		}},
		NetworkGroups: []*types.NetworkGroup{{Name: "MANAGEMENT", ComponentEndpoints: []string{"default"}}},
		Networks: []*types.Network{
			{Name: "MGMT-NET", NetworkGroup: "MANAGEMENT", CIDR: "10.0.0.0/24", GatewayIP: "10.0.0.1"},
		},
		ServiceComponents: []*types.ServiceComponent{{Name: "api"}},
	}
}

func run(m *types.Model) *diag.Diagnostics {
	m.Normalize()
	d := diag.New(zerolog.Nop())
	Run(m, topology.NewTree(m), d)
	return d
}

func TestValidModel(t *testing.T) {
	d := run(validModel())
	assert.Empty(t, d.Errors())
	assert.Empty(t, d.Warnings())
}

func TestCIDROverlapReportedOnce(t *testing.T) {
	m := validModel()
	m.Networks = []*types.Network{
		{Name: "NET-A", NetworkGroup: "MANAGEMENT", CIDR: "192.168.1.0/24"},
		{Name: "NET-B", NetworkGroup: "MANAGEMENT", CIDR: "192.168.1.0/24"},
	}
	m.ServerGroups[0].Networks = nil
	d := run(m)

	errs := d.ErrorsFrom(SourceCIDR)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Message, "NET-A")
	assert.Contains(t, errs[0].Message, "NET-B")
}

func TestCIDRRanges(t *testing.T) {
	tests := []struct {
		name     string
		networks []*types.Network
		errors   int
	}{
		{
			name: "disjoint start/end inside one cidr",
			networks: []*types.Network{
				{Name: "A", CIDR: "10.0.0.0/24", StartAddress: "10.0.0.10", EndAddress: "10.0.0.99"},
				{Name: "B", CIDR: "10.0.0.0/24", StartAddress: "10.0.0.100", EndAddress: "10.0.0.200"},
			},
		},
		{
			name: "supernet overlaps subnet",
			networks: []*types.Network{
				{Name: "A", CIDR: "10.0.0.0/16"},
				{Name: "B", CIDR: "10.0.5.0/24"},
			},
			errors: 1,
		},
		{
			name: "three way overlap is three pairs",
			networks: []*types.Network{
				{Name: "A", CIDR: "10.0.0.0/24"},
				{Name: "B", CIDR: "10.0.0.0/25"},
				{Name: "C", CIDR: "10.0.0.128/25"},
			},
			errors: 2,
		},
		{
			name:     "start outside cidr",
			networks: []*types.Network{{Name: "A", CIDR: "10.0.0.0/24", StartAddress: "10.0.1.1"}},
			errors:   1,
		},
		{
			name:     "start after end",
			networks: []*types.Network{{Name: "A", CIDR: "10.0.0.0/24", StartAddress: "10.0.0.50", EndAddress: "10.0.0.20"}},
			errors:   1,
		},
		{
			name:     "bad cidr",
			networks: []*types.Network{{Name: "A", CIDR: "10.0.0.0/33"}},
			errors:   1,
		},
		{
			name:     "gateway outside cidr",
			networks: []*types.Network{{Name: "A", CIDR: "10.0.0.0/24", GatewayIP: "10.9.9.1"}},
			errors:   1,
		},
		{
			name: "ipv6",
			networks: []*types.Network{
				{Name: "A", CIDR: "fd00::/64"},
				{Name: "B", CIDR: "fd00:0:0:1::/64"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := diag.New(zerolog.Nop())
			cidrs(&types.Model{Networks: tt.networks}, nil, reporter{d: d, source: SourceCIDR})
			assert.Len(t, d.Errors(), tt.errors)
		})
	}
}

func TestSweeps(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(m *types.Model)
		source   string
		errors   int
		warnings int
	}{
		{
			name: "duplicate group names",
			mutate: func(m *types.Model) {
				cp := m.ControlPlanes[0]
				cp.Resources = append(cp.Resources, &types.Cluster{Name: "c1", ResourcePrefix: "x", ServerRoles: types.StringList{"compute"}})
			},
			source: SourceDuplicates,
			errors: 1,
		},
		{
			name: "duplicate resource prefix",
			mutate: func(m *types.Model) {
				cp := m.ControlPlanes[0]
				cp.Resources[0].ResourcePrefix = "comp"
				cp.Resources = append(cp.Resources, &types.Cluster{Name: "compute2", ResourcePrefix: "comp", ServerRoles: types.StringList{"compute"}})
			},
			source: SourcePrefixes,
			errors: 1,
		},
		{
			name:   "invalid allocation policy",
			mutate: func(m *types.Model) { m.ControlPlanes[0].Clusters[0].AllocationPolicy = "round-robin" },
			source: SourcePolicy,
			errors: 1,
		},
		{
			name: "min above max",
			mutate: func(m *types.Model) {
				three, two := 3, 2
				m.ControlPlanes[0].Clusters[0].MinCount = &three
				m.ControlPlanes[0].Clusters[0].MaxCount = &two
			},
			source: SourcePolicy,
			errors: 1,
		},
		{
			name:   "undefined role",
			mutate: func(m *types.Model) { m.Servers[0].Role = "ghost" },
			source: SourceReferences,
			errors: 1,
		},
		{
			name:   "undefined failure zone",
			mutate: func(m *types.Model) { m.ControlPlanes[0].Clusters[0].FailureZones = []string{"AZ9"} },
			source: SourceReferences,
			errors: 1,
		},
		{
			name:   "undefined service component",
			mutate: func(m *types.Model) { m.ControlPlanes[0].Clusters[0].ServiceComponents = []string{"nova"} },
			source: SourceReferences,
			errors: 1,
		},
		{
			name:   "undefined disk model",
			mutate: func(m *types.Model) { m.ServerRoles[0].DiskModel = "disks" },
			source: SourceReferences,
			errors: 1,
		},
		{
			name: "network group without networks",
			mutate: func(m *types.Model) {
				m.NetworkGroups = append(m.NetworkGroups, &types.NetworkGroup{
					Name: "EXTERNAL", LoadBalancers: []*types.LoadBalancer{{Name: "lb", Provider: types.ExternalProvider}},
				})
			},
			source: SourceNetworkGroups,
			errors: 1,
		},
		{
			name: "server group cycle",
			mutate: func(m *types.Model) {
				m.ServerGroups[0].ServerGroups = []string{"RACK"}
				m.ServerGroups = append(m.ServerGroups, &types.ServerGroup{Name: "RACK", ServerGroups: []string{"AZ1"}})
			},
			source: SourceServerGroups,
			errors: 1,
		},
		{
			name: "server outside server groups",
			mutate: func(m *types.Model) {
				m.Servers = append(m.Servers, &types.Server{ID: "s2", Role: "controller"})
			},
			source: SourceServerGroups,
			errors: 1,
		},
		{
			name: "orphan server is a warning",
			mutate: func(m *types.Model) {
				m.ServerRoles = append(m.ServerRoles, &types.ServerRole{Name: "spare", InterfaceModel: "if"})
				m.Servers = append(m.Servers, &types.Server{ID: "x1", Role: "spare", ServerGroup: "AZ1"})
			},
			source:   SourceOrphans,
			warnings: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validModel()
			tt.mutate(m)
			d := run(m)
			assert.Len(t, d.ErrorsFrom(tt.source), tt.errors)
			assert.Len(t, d.WarningsFrom(tt.source), tt.warnings)
		})
	}
}

func TestChecksKeepGoing(t *testing.T) {
	m := validModel()
	m.Servers[0].Role = "ghost"
	m.ControlPlanes[0].Clusters[0].AllocationPolicy = "bogus"
	m.Networks = append(m.Networks, &types.Network{Name: "DUP", NetworkGroup: "MANAGEMENT", CIDR: "10.0.0.0/24"})

	d := run(m)
	assert.NotEmpty(t, d.ErrorsFrom(SourceReferences))
	assert.NotEmpty(t, d.ErrorsFrom(SourcePolicy))
	assert.NotEmpty(t, d.ErrorsFrom(SourceCIDR))
	assert.NotEmpty(t, d.WarningsFrom(SourceOrphans), "server with undefined role fits no group")
}
