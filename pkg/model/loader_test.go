package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/cloudcfg/pkg/types"
)

func write(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

const cloudDoc = `
product:
  version: 2
cloud:
  name: demo
  hostname-data:
    host-prefix: dm
control-planes:
  - name: cp1
    control-plane-prefix: c1
    clusters:
      - name: cluster1
        cluster-prefix: cl
        server-role: CONTROLLER
        member-count: 3
    resources:
      - name: compute
        resource-prefix: comp
        server-role: [COMPUTE, COMPUTE-ALT]
`

const serversDoc = `
product:
  version: 2
servers:
  - id: s1
    ip-addr: 10.0.0.1
    role: CONTROLLER
  - id: s2
    ip-addr: 10.0.0.2
    role: CONTROLLER
`

func TestLoadDirectoryMergesInOrder(t *testing.T) {
	dir := t.TempDir()
	write(t, dir, "b/servers.yml", serversDoc)
	write(t, dir, "a/cloud.yml", cloudDoc)
	write(t, dir, "README.md", "not a model file")

	res, err := NewLoader().Load(dir)
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, []string{
		filepath.Join(dir, "a/cloud.yml"),
		filepath.Join(dir, "b/servers.yml"),
	}, res.Files)

	m := res.Model
	assert.Equal(t, "demo", m.Cloud.Name)
	require.Len(t, m.Servers, 2)
	assert.Equal(t, "s1", m.Servers[0].ID)

	g, ok := m.Group("cp1", "compute")
	require.True(t, ok)
	assert.Equal(t, types.GroupKindResource, g.Kind)
	assert.Equal(t, "cp1", g.ControlPlane)
	assert.Equal(t, types.StringList{"COMPUTE", "COMPUTE-ALT"}, g.ServerRoles)

	c, ok := m.Group("cp1", "cluster1")
	require.True(t, ok)
	assert.Equal(t, 3, c.Min())
}

func TestLoadJSON(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "servers.json", `{"product": {"version": 2}, "servers": [{"id": "s9", "ip-addr": "10.0.0.9", "role": "COMPUTE"}]}`)

	res, err := NewLoader().Load(path)
	require.NoError(t, err)
	require.Len(t, res.Model.Servers, 1)
	assert.Equal(t, "s9", res.Model.Servers[0].ID)
}

func TestLoadMultiDocument(t *testing.T) {
	dir := t.TempDir()
	path := write(t, dir, "all.yml", cloudDoc+"\n---\n"+serversDoc)

	res, err := NewLoader().Load(path)
	require.NoError(t, err)
	assert.Equal(t, "demo", res.Model.Cloud.Name)
	assert.Len(t, res.Model.Servers, 2)
}

func TestLoadPerFileErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{
			name:    "duplicate key",
			body:    "product:\n  version: 2\nservers: []\nservers: []\n",
			wantErr: "already",
		},
		{
			name:    "unknown field",
			body:    "product:\n  version: 2\nserverz: []\n",
			wantErr: "field serverz not found",
		},
		{
			name:    "wrong version",
			body:    "product:\n  version: 1\nservers: []\n",
			wantErr: "unsupported product version 1",
		},
		{
			name:    "missing version",
			body:    "servers: []\n",
			wantErr: "unsupported product version 0",
		},
		{
			name:    "syntax error",
			body:    "product:\n  version: [2\n",
			wantErr: "line",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			good := write(t, dir, "good.yml", serversDoc)
			bad := write(t, dir, "bad.yml", tt.body)

			res, err := NewLoader().Load(bad, good)
			require.NoError(t, err)
			require.Len(t, res.Errors, 1)
			assert.Contains(t, res.Errors[0].Error(), bad)
			assert.Contains(t, res.Errors[0].Error(), tt.wantErr)
			assert.Equal(t, []string{good}, res.Files)
			assert.Len(t, res.Model.Servers, 2)
		})
	}
}

func TestLoadNothing(t *testing.T) {
	dir := t.TempDir()
	bad := write(t, dir, "bad.yml", "product:\n  version: 3\n")

	res, err := NewLoader().Load(bad, filepath.Join(dir, "missing.yml"))
	assert.True(t, errors.Is(err, ErrNoInput))
	assert.Len(t, res.Errors, 2)
}
