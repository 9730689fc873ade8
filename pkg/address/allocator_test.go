package address

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cloudcfg/pkg/storage"
	"github.com/cuemby/cloudcfg/pkg/types"
)

func mgmt() *types.Network {
	return &types.Network{
		Name:         "MGMT",
		NetworkGroup: "MANAGEMENT",
		CIDR:         "10.0.0.0/24",
		GatewayIP:    "10.0.0.1",
	}
}

func TestAllocateSkipsGatewayInOrder(t *testing.T) {
	a, err := NewAllocator(storage.NewMemoryStore(), nil)
	require.NoError(t, err)
	pool, err := a.GeneratePool(mgmt())
	require.NoError(t, err)

	var got []string
	for _, host := range []string{"h1", "h2", "h3"} {
		addr, err := a.Allocate(pool, Request{UsedBy: "server", Host: host})
		require.NoError(t, err)
		got = append(got, addr)
	}
	assert.Equal(t, []string{"10.0.0.2", "10.0.0.3", "10.0.0.4"}, got)
}

func TestAllocateIdempotentAcrossRuns(t *testing.T) {
	store := storage.NewMemoryStore()

	a1, err := NewAllocator(store, nil)
	require.NoError(t, err)
	p1, err := a1.GeneratePool(mgmt())
	require.NoError(t, err)
	first, err := a1.Allocate(p1, Request{UsedBy: "server", Host: "h1"})
	require.NoError(t, err)
	second, err := a1.Allocate(p1, Request{UsedBy: "server", Host: "h2"})
	require.NoError(t, err)

	again, err := a1.Allocate(p1, Request{UsedBy: "server", Host: "h1"})
	require.NoError(t, err)
	assert.Equal(t, first, again, "same consumer in the same run")

	// second run asks in the opposite order
	a2, err := NewAllocator(store, nil)
	require.NoError(t, err)
	p2, err := a2.GeneratePool(mgmt())
	require.NoError(t, err)
	got2, err := a2.Allocate(p2, Request{UsedBy: "server", Host: "h2"})
	require.NoError(t, err)
	got1, err := a2.Allocate(p2, Request{UsedBy: "server", Host: "h1"})
	require.NoError(t, err)
	assert.Equal(t, second, got2)
	assert.Equal(t, first, got1)
	assert.Empty(t, a2.Unused())
}

func TestAllocateStaticAddress(t *testing.T) {
	servers := []*types.Server{{ID: "s1", IPAddr: "10.0.0.2"}, {ID: "s2", IPAddr: "10.0.0.3"}}
	a, err := NewAllocator(storage.NewMemoryStore(), servers)
	require.NoError(t, err)
	pool, err := a.GeneratePool(mgmt())
	require.NoError(t, err)

	assert.False(t, pool.IsFree("10.0.0.2"), "static server addresses are pre-claimed")

	addr, err := a.Allocate(pool, Request{UsedBy: "vip", Host: "lb"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.4", addr)

	addr, err = a.Allocate(pool, Request{UsedBy: "server", Host: "s1", Address: "10.0.0.2", ServerID: "s1"})
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", addr)

	_, err = a.Allocate(pool, Request{UsedBy: "server", Host: "s9", Address: "10.0.0.3", ServerID: "s9"})
	assert.True(t, errors.Is(err, ErrAddressInUse))

	_, err = a.Allocate(pool, Request{UsedBy: "server", Host: "s1", Address: "10.9.0.3", ServerID: "s1"})
	assert.True(t, errors.Is(err, ErrOutOfRange))
}

func TestAllocateExhausted(t *testing.T) {
	a, err := NewAllocator(storage.NewMemoryStore(), nil)
	require.NoError(t, err)
	pool, err := a.GeneratePool(&types.Network{
		Name:         "TINY",
		CIDR:         "192.168.10.0/29",
		StartAddress: "192.168.10.4",
		EndAddress:   "192.168.10.5",
	})
	require.NoError(t, err)

	for _, host := range []string{"a", "b"} {
		_, err := a.Allocate(pool, Request{UsedBy: "server", Host: host})
		require.NoError(t, err)
	}
	_, err = a.Allocate(pool, Request{UsedBy: "server", Host: "c"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrPoolExhausted))
	assert.Contains(t, err.Error(), "TINY")
	assert.Contains(t, err.Error(), "server c")
}

func TestGeneratePoolValidation(t *testing.T) {
	a, err := NewAllocator(storage.NewMemoryStore(), nil)
	require.NoError(t, err)

	tests := []struct {
		name    string
		network *types.Network
	}{
		{"no cidr", &types.Network{Name: "N1"}},
		{"bad cidr", &types.Network{Name: "N2", CIDR: "10.0.0.0/33"}},
		{"start outside", &types.Network{Name: "N3", CIDR: "10.0.0.0/24", StartAddress: "10.0.1.1"}},
		{"start after end", &types.Network{Name: "N4", CIDR: "10.0.0.0/24", StartAddress: "10.0.0.9", EndAddress: "10.0.0.3"}},
		{"too small", &types.Network{Name: "N5", CIDR: "10.0.0.0/31"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.GeneratePool(tt.network)
			assert.Error(t, err)
		})
	}
}

func TestUnusedAndPurge(t *testing.T) {
	store := storage.NewMemoryStore()
	a1, err := NewAllocator(store, nil)
	require.NoError(t, err)
	p1, err := a1.GeneratePool(mgmt())
	require.NoError(t, err)
	_, err = a1.Allocate(p1, Request{UsedBy: "server", Host: "s1", ServerID: "s1"})
	require.NoError(t, err)
	_, err = a1.Allocate(p1, Request{UsedBy: "server", Host: "s2", ServerID: "s2"})
	require.NoError(t, err)

	a2, err := NewAllocator(store, nil)
	require.NoError(t, err)
	p2, err := a2.GeneratePool(mgmt())
	require.NoError(t, err)
	_, err = a2.Allocate(p2, Request{UsedBy: "server", Host: "s1", ServerID: "s1"})
	require.NoError(t, err)

	unused := a2.Unused()
	require.Len(t, unused, 1)
	assert.Equal(t, "10.0.0.3", unused[0].Address)
	assert.False(t, p2.IsFree("10.0.0.3"), "persisted addresses stay reserved until freed")

	freed, err := a2.PurgeServer("s2")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.3"}, freed)
	assert.True(t, p2.IsFree("10.0.0.3"))
	_, ok, _ := store.Get(types.NamespaceAddresses, "10.0.0.3")
	assert.False(t, ok)
}

func TestPoolRecordsUnique(t *testing.T) {
	a, err := NewAllocator(storage.NewMemoryStore(), []*types.Server{{ID: "s1", IPAddr: "10.0.0.5"}})
	require.NoError(t, err)
	pool, err := a.GeneratePool(mgmt())
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		_, err := a.Allocate(pool, Request{UsedBy: "server", Host: string(rune('a' + i))})
		require.NoError(t, err)
	}

	seen := make(map[string]bool)
	for _, r := range pool.Records() {
		assert.False(t, seen[r.Address], "address %s appears twice", r.Address)
		seen[r.Address] = true
	}
	assert.Len(t, seen, 11)
	assert.Equal(t, "10.0.0.5", pool.Records()[3].Address)
}
