// Package topology models the server-group (zone) hierarchy used to scope
// server searches and to resolve which concrete network a server attaches to.
//
// Groups are kept in an arena keyed by name; a child records its ParentID
// instead of holding a pointer back to its parent, so nothing in the tree is
// cyclic and any part of it can be serialised as is.
package topology

import (
	"fmt"
	"sort"

	"github.com/cuemby/cloudcfg/pkg/types"
)

// DefaultGroup is the synthetic flat group holding every server and network
const DefaultGroup = "default"

// Group is one node of the zone tree
type Group struct {
	Name     string
	ParentID string
	Children []string
	Networks []string
	Servers  []string
}

// StateLookup reports the allocation state of a server
type StateLookup interface {
	State(serverID string) types.ServerState
}

// StateFunc adapts a function to StateLookup
type StateFunc func(serverID string) types.ServerState

func (f StateFunc) State(serverID string) types.ServerState { return f(serverID) }

// Tree is the arena of server groups
type Tree struct {
	groups   map[string]*Group
	order    []string
	servers  map[string]*types.Server
	networks map[string]*types.Network
	inUse    bool
}

// NewTree builds the zone tree from the model. A group claimed by two parents
// keeps the first; cycles and undefined children are reported by CheckHierarchy.
func NewTree(m *types.Model) *Tree {
	t := &Tree{
		groups:   make(map[string]*Group),
		servers:  make(map[string]*types.Server),
		networks: make(map[string]*types.Network),
		inUse:    len(m.ServerGroups) > 0,
	}

	for _, n := range m.Networks {
		t.networks[n.Name] = n
	}

	for _, sg := range m.ServerGroups {
		if _, dup := t.groups[sg.Name]; dup {
			continue
		}
		t.groups[sg.Name] = &Group{
			Name:     sg.Name,
			Children: append([]string(nil), sg.ServerGroups...),
			Networks: append([]string(nil), sg.Networks...),
		}
		t.order = append(t.order, sg.Name)
	}
	for _, name := range t.order {
		for _, child := range t.groups[name].Children {
			c, ok := t.groups[child]
			if !ok || c.ParentID != "" || child == name {
				continue
			}
			c.ParentID = name
		}
	}

	def, ok := t.groups[DefaultGroup]
	if !ok {
		// flat fallback: every network, and below every server
		def = &Group{Name: DefaultGroup}
		t.groups[DefaultGroup] = def
		for _, n := range m.Networks {
			def.Networks = append(def.Networks, n.Name)
		}
	}

	userDefault := t.userDefined(DefaultGroup)
	for _, s := range m.Servers {
		t.servers[s.ID] = s
		if !userDefault {
			def.Servers = append(def.Servers, s.ID)
		}
		if s.ServerGroup == "" || (!userDefault && s.ServerGroup == DefaultGroup) {
			continue
		}
		if g, ok := t.groups[s.ServerGroup]; ok {
			g.Servers = append(g.Servers, s.ID)
		}
	}
	return t
}

func (t *Tree) userDefined(name string) bool {
	for _, n := range t.order {
		if n == name {
			return true
		}
	}
	return false
}

// InUse reports whether the model declares server groups
func (t *Tree) InUse() bool {
	return t.inUse
}

// Group returns a group by name
func (t *Tree) Group(name string) (*Group, bool) {
	g, ok := t.groups[name]
	return g, ok
}

// Parent returns the parent of a group
func (t *Tree) Parent(name string) (*Group, bool) {
	g, ok := t.groups[name]
	if !ok || g.ParentID == "" {
		return nil, false
	}
	return t.Group(g.ParentID)
}

// walk visits a group and its descendants depth first, guarding against cycles
func (t *Tree) walk(name string, seen map[string]bool, visit func(*Group) bool) bool {
	if seen[name] {
		return false
	}
	seen[name] = true
	g, ok := t.groups[name]
	if !ok {
		return false
	}
	if visit(g) {
		return true
	}
	for _, child := range g.Children {
		if t.walk(child, seen, visit) {
			return true
		}
	}
	return false
}

// GetServer returns the first server, searching the zones depth first, that
// is in the wanted state and has one of the roles. When nothing matches and
// def is not empty the def group is searched as well.
func (t *Tree) GetServer(zones []string, want types.ServerState, roles []string, def string, states StateLookup) (*types.Server, bool) {
	match := func(id string) bool {
		s, ok := t.servers[id]
		if !ok || states.State(id) != want {
			return false
		}
		for _, r := range roles {
			if s.Role == r {
				return true
			}
		}
		return false
	}

	var found *types.Server
	search := func(names []string) bool {
		seen := make(map[string]bool)
		for _, z := range names {
			if t.walk(z, seen, func(g *Group) bool {
				for _, id := range g.Servers {
					if match(id) {
						found = t.servers[id]
						return true
					}
				}
				return false
			}) {
				return true
			}
		}
		return false
	}

	if search(zones) {
		return found, true
	}
	if def != "" && search([]string{def}) {
		return found, true
	}
	return nil, false
}

// GetZone returns which of the zones (including descendants) contains the
// server, or def when none does.
func (t *Tree) GetZone(zones []string, serverID string, def string) string {
	for _, z := range zones {
		found := t.walk(z, make(map[string]bool), func(g *Group) bool {
			for _, id := range g.Servers {
				if id == serverID {
					return true
				}
			}
			return false
		})
		if found {
			return z
		}
	}
	return def
}

// FindNetwork walks from a group up through its parents looking for a network
// of the wanted network group, then falls back to the def group.
func (t *Tree) FindNetwork(group, netGroup, def string) (*types.Network, bool) {
	seen := make(map[string]bool)
	for name := group; name != "" && !seen[name]; {
		seen[name] = true
		g, ok := t.groups[name]
		if !ok {
			break
		}
		if n, ok := t.networkIn(g, netGroup); ok {
			return n, true
		}
		name = g.ParentID
	}
	if def != "" {
		if g, ok := t.groups[def]; ok {
			return t.networkIn(g, netGroup)
		}
	}
	return nil, false
}

func (t *Tree) networkIn(g *Group, netGroup string) (*types.Network, bool) {
	for _, name := range g.Networks {
		if n, ok := t.networks[name]; ok && n.NetworkGroup == netGroup {
			return n, true
		}
	}
	return nil, false
}

// ServerGroupOf returns the group a server belongs to, or DefaultGroup
func (t *Tree) ServerGroupOf(serverID string) string {
	s, ok := t.servers[serverID]
	if !ok || s.ServerGroup == "" {
		return DefaultGroup
	}
	if _, ok := t.groups[s.ServerGroup]; !ok {
		return DefaultGroup
	}
	return s.ServerGroup
}

// Covered reports whether a server is reachable from any user-defined group
func (t *Tree) Covered(serverID string) bool {
	s, ok := t.servers[serverID]
	if !ok || s.ServerGroup == "" {
		return false
	}
	return t.userDefined(s.ServerGroup)
}

// CheckHierarchy reports undefined children, groups with several parents and
// reference cycles among server groups.
func CheckHierarchy(groups []*types.ServerGroup) []error {
	var errs []error
	defined := make(map[string]*types.ServerGroup)
	for _, g := range groups {
		defined[g.Name] = g
	}

	parents := make(map[string][]string)
	for _, g := range groups {
		for _, child := range g.ServerGroups {
			if _, ok := defined[child]; !ok {
				errs = append(errs, fmt.Errorf("server group %s references undefined server group %s", g.Name, child))
				continue
			}
			parents[child] = append(parents[child], g.Name)
		}
	}

	children := make([]string, 0, len(parents))
	for c := range parents {
		children = append(children, c)
	}
	sort.Strings(children)
	for _, c := range children {
		if len(parents[c]) > 1 {
			errs = append(errs, fmt.Errorf("server group %s has more than one parent: %v", c, parents[c]))
		}
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int)
	var visit func(name string, path []string)
	visit = func(name string, path []string) {
		color[name] = grey
		path = append(path, name)
		for _, child := range defined[name].ServerGroups {
			if _, ok := defined[child]; !ok {
				continue
			}
			switch color[child] {
			case grey:
				errs = append(errs, fmt.Errorf("server group cycle: %v", append(path, child)))
			case white:
				visit(child, path)
			}
		}
		color[name] = black
	}
	for _, g := range groups {
		if color[g.Name] == white {
			visit(g.Name, nil)
		}
	}
	return errs
}
