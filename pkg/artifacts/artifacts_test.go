package artifacts

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/cloudcfg/pkg/hostname"
	"github.com/cuemby/cloudcfg/pkg/types"
)

func resolvedFixture() *types.Resolved {
	res := types.NewResolved("run-1", "demo")
	res.Servers = []*types.ResolvedServer{
		{
			ID: "s2", Hostname: "dm-c1-cl-m2", Role: "CONTROLLER", ControlPlane: "cp1", Group: "cluster1",
			MemberID: 2, IPAddr: "192.168.0.2", Components: []string{"api"},
			Networks: []*types.ServerNetwork{
				{Network: "MGMT-NET", NetworkGroup: "MGMT", Address: "10.0.0.10", Alias: "dm-c1-cl-m2-mgmt", Hostname: true},
				{Network: "EXT-NET", NetworkGroup: "EXTERNAL", Address: "10.1.0.10", Alias: "dm-c1-cl-m2-ext"},
			},
		},
		{
			ID: "s1", Hostname: "dm-c1-cl-m1", Role: "CONTROLLER", ControlPlane: "cp1", Group: "cluster1",
			MemberID: 1, FailureZone: "AZ1", IPAddr: "192.168.0.1", Components: []string{"api"},
			Networks: []*types.ServerNetwork{
				{Network: "MGMT-NET", NetworkGroup: "MGMT", Address: "10.0.0.9", Alias: "dm-c1-cl-m1-mgmt", Hostname: true},
			},
		},
	}
	res.VIPs = []*types.VIP{
		{Component: "api", Role: "internal", Network: "MGMT-NET", NetworkGroup: "MGMT", Address: "10.0.0.2",
			Aliases: []string{"dm-c1-vip-internal-api", "api.internal"}},
		{Component: "api", Role: "admin", Network: "MGMT-NET", NetworkGroup: "MGMT", Address: "10.0.0.2",
			Aliases: []string{"dm-c1-vip-admin-api"}},
	}
	return res
}

func TestBuildAddressMap(t *testing.T) {
	hosts := hostname.NewRegistry()
	hosts.Register("dm-c1-cl-m1", "server:s1")

	am := BuildAddressMap(resolvedFixture(), hosts)

	var addrs []string
	for _, e := range am.Addresses {
		addrs = append(addrs, e.Address)
	}
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.9", "10.0.0.10", "10.1.0.10"}, addrs)
	assert.Equal(t, []string{"api.internal", "dm-c1-vip-admin-api", "dm-c1-vip-internal-api"}, am.Addresses[0].Aliases)
	assert.Equal(t, []string{"dm-c1-cl-m1", "dm-c1-cl-m1-mgmt"}, am.Addresses[1].Aliases)
	assert.Equal(t, []string{"dm-c1-cl-m2-ext"}, am.Addresses[3].Aliases)
	require.Len(t, am.Hostnames, 1)
	assert.Equal(t, "server:s1", am.Hostnames[0].Owner)
}

func TestBuildInventory(t *testing.T) {
	inv := BuildInventory(resolvedFixture())

	children := inv.All.Children
	assert.Contains(t, children, "cp1")
	assert.Contains(t, children, "cp1_cluster1")
	assert.Contains(t, children, "role_controller")
	assert.Contains(t, children, "component_api")

	h := children["cp1_cluster1"].Hosts["dm-c1-cl-m1"]
	require.NotNil(t, h)
	assert.Equal(t, "10.0.0.9", h.AnsibleHost)
	assert.Equal(t, "AZ1", h.FailureZone)
	assert.Len(t, children["role_controller"].Hosts, 2)
}

func TestBuildFirewall(t *testing.T) {
	m := &types.Model{
		FirewallRules: []*types.FirewallRule{
			{
				Name:          "ping",
				NetworkGroups: []string{"MGMT"},
				Rules: []types.FirewallRT{
					{Type: "allow", RemoteIPPrefix: "0.0.0.0/0", Protocol: "icmp", PortRangeMin: 0, PortRangeMax: 255},
				},
			},
		},
	}

	rules := BuildFirewall(m, resolvedFixture())
	require.Len(t, rules, 3)
	assert.Equal(t, "10.0.0.2", rules[0].Address)
	assert.Len(t, rules[0].Rules, 1, "shared VIP address gets each rule once")
	assert.Equal(t, "ping", rules[1].Rules[0].Chain)
	for _, r := range rules {
		assert.Equal(t, "MGMT-NET", r.Network)
	}
}

func TestWritesAreStable(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	require.NoError(t, err)

	render := func() map[string][]byte {
		res := resolvedFixture()
		res.SortServers()
		require.NoError(t, w.WriteResolved(res))
		require.NoError(t, w.WriteAddressMap(res, hostname.NewRegistry()))
		require.NoError(t, w.WriteInventory(res))
		require.NoError(t, w.WriteFirewall(&types.Model{}, res))

		out := make(map[string][]byte)
		for _, name := range []string{ResolvedFile, AddressMapFile, InventoryFile, FirewallFile} {
			data, err := os.ReadFile(w.Path(name))
			require.NoError(t, err)
			out[name] = data
		}
		return out
	}

	first := render()
	second := render()
	assert.Equal(t, first, second)

	var back types.Resolved
	require.NoError(t, yaml.Unmarshal(first[ResolvedFile], &back))
	assert.Equal(t, "demo", back.Cloud)
	assert.NotContains(t, string(first[ResolvedFile]), "run-1", "run id would break stable output")
	require.Len(t, back.Servers, 2)
	assert.Equal(t, "dm-c1-cl-m1", back.Servers[0].Hostname)
}
