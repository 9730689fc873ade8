package artifacts

import (
	"strings"

	"github.com/cuemby/cloudcfg/pkg/types"
)

// HostVars are the per-host variables of the inventory
type HostVars struct {
	AnsibleHost  string `yaml:"ansible_host"`
	ServerID     string `yaml:"server_id"`
	ControlPlane string `yaml:"control_plane"`
	MemberID     int    `yaml:"member_id"`
	FailureZone  string `yaml:"failure_zone,omitempty"`
}

// InventoryGroup is one static group of hosts
type InventoryGroup struct {
	Hosts map[string]*HostVars `yaml:"hosts"`
}

// Inventory is the inventory.yml document, in the Ansible YAML layout
type Inventory struct {
	All struct {
		Children map[string]*InventoryGroup `yaml:"children"`
	} `yaml:"all"`
}

// GroupName turns a model name into an inventory group name
func GroupName(parts ...string) string {
	name := strings.Join(parts, "_")
	return strings.NewReplacer("-", "_", "/", "_", ".", "_").Replace(strings.ToLower(name))
}

// BuildInventory groups servers by control plane, cluster or resource group,
// role and component
func BuildInventory(res *types.Resolved) *Inventory {
	inv := &Inventory{}
	inv.All.Children = make(map[string]*InventoryGroup)

	add := func(group, host string, vars *HostVars) {
		g, ok := inv.All.Children[group]
		if !ok {
			g = &InventoryGroup{Hosts: make(map[string]*HostVars)}
			inv.All.Children[group] = g
		}
		g.Hosts[host] = vars
	}

	for _, s := range res.Servers {
		vars := &HostVars{
			AnsibleHost:  ansibleHost(s),
			ServerID:     s.ID,
			ControlPlane: s.ControlPlane,
			MemberID:     s.MemberID,
			FailureZone:  s.FailureZone,
		}
		add(GroupName(s.ControlPlane), s.Hostname, vars)
		add(GroupName(s.ControlPlane, s.Group), s.Hostname, vars)
		add(GroupName("role", s.Role), s.Hostname, vars)
		for _, c := range s.Components {
			add(GroupName("component", c), s.Hostname, vars)
		}
	}
	return inv
}

// ansibleHost prefers the address on the hostname network
func ansibleHost(s *types.ResolvedServer) string {
	for _, n := range s.Networks {
		if n.Hostname && n.Address != "" {
			return n.Address
		}
	}
	return s.IPAddr
}

// WriteInventory writes inventory.yml
func (w *Writer) WriteInventory(res *types.Resolved) error {
	return w.write(InventoryFile, BuildInventory(res))
}
