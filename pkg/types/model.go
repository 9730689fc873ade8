package types

// Document is the shape of one input file. Every section is optional.
type Document struct {
	Product           Product             `yaml:"product"`
	Cloud             *Cloud              `yaml:"cloud,omitempty"`
	ControlPlanes     []*ControlPlane     `yaml:"control-planes,omitempty"`
	Networks          []*Network          `yaml:"networks,omitempty"`
	NetworkGroups     []*NetworkGroup     `yaml:"network-groups,omitempty"`
	ServerRoles       []*ServerRole       `yaml:"server-roles,omitempty"`
	Servers           []*Server           `yaml:"servers,omitempty"`
	ServerGroups      []*ServerGroup      `yaml:"server-groups,omitempty"`
	DiskModels        []*DiskModel        `yaml:"disk-models,omitempty"`
	InterfaceModels   []*InterfaceModel   `yaml:"interface-models,omitempty"`
	NicMappings       []*NicMapping       `yaml:"nic-mappings,omitempty"`
	ServiceComponents []*ServiceComponent `yaml:"service-components,omitempty"`
	PassThrough       *PassThrough        `yaml:"pass-through,omitempty"`
	FirewallRules     []*FirewallRule     `yaml:"firewall-rules,omitempty"`
}

// Model is the merged input model of a run
type Model struct {
	Cloud             Cloud
	ControlPlanes     []*ControlPlane
	Networks          []*Network
	NetworkGroups     []*NetworkGroup
	ServerRoles       []*ServerRole
	Servers           []*Server
	ServerGroups      []*ServerGroup
	DiskModels        []*DiskModel
	InterfaceModels   []*InterfaceModel
	NicMappings       []*NicMapping
	ServiceComponents []*ServiceComponent
	PassThrough       PassThrough
	FirewallRules     []*FirewallRule
}

// Merge appends the sections of a document to the model
func (m *Model) Merge(doc *Document) {
	if doc.Cloud != nil {
		m.Cloud = *doc.Cloud
	}
	m.ControlPlanes = append(m.ControlPlanes, doc.ControlPlanes...)
	m.Networks = append(m.Networks, doc.Networks...)
	m.NetworkGroups = append(m.NetworkGroups, doc.NetworkGroups...)
	m.ServerRoles = append(m.ServerRoles, doc.ServerRoles...)
	m.Servers = append(m.Servers, doc.Servers...)
	m.ServerGroups = append(m.ServerGroups, doc.ServerGroups...)
	m.DiskModels = append(m.DiskModels, doc.DiskModels...)
	m.InterfaceModels = append(m.InterfaceModels, doc.InterfaceModels...)
	m.NicMappings = append(m.NicMappings, doc.NicMappings...)
	m.ServiceComponents = append(m.ServiceComponents, doc.ServiceComponents...)
	m.FirewallRules = append(m.FirewallRules, doc.FirewallRules...)
	if doc.PassThrough != nil {
		if m.PassThrough.Global == nil {
			m.PassThrough.Global = make(map[string]interface{})
		}
		for k, v := range doc.PassThrough.Global {
			m.PassThrough.Global[k] = v
		}
		m.PassThrough.Servers = append(m.PassThrough.Servers, doc.PassThrough.Servers...)
	}
}

// Normalize stamps control-plane ownership and group kinds onto clusters and resources
func (m *Model) Normalize() {
	for _, cp := range m.ControlPlanes {
		for _, c := range cp.Clusters {
			c.Kind = GroupKindCluster
			c.ControlPlane = cp.Name
		}
		for _, r := range cp.Resources {
			r.Kind = GroupKindResource
			r.ControlPlane = cp.Name
		}
	}
}

// Server returns the server with the given id
func (m *Model) Server(id string) (*Server, bool) {
	for _, s := range m.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Network returns the network with the given name
func (m *Model) Network(name string) (*Network, bool) {
	for _, n := range m.Networks {
		if n.Name == name {
			return n, true
		}
	}
	return nil, false
}

// NetworkGroup returns the network group with the given name
func (m *Model) NetworkGroup(name string) (*NetworkGroup, bool) {
	for _, g := range m.NetworkGroups {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}

// NetworksInGroup returns the networks of a network group in input order
func (m *Model) NetworksInGroup(group string) []*Network {
	var nets []*Network
	for _, n := range m.Networks {
		if n.NetworkGroup == group {
			nets = append(nets, n)
		}
	}
	return nets
}

// ServerRole returns the role with the given name
func (m *Model) ServerRole(name string) (*ServerRole, bool) {
	for _, r := range m.ServerRoles {
		if r.Name == name {
			return r, true
		}
	}
	return nil, false
}

// InterfaceModel returns the interface model with the given name
func (m *Model) InterfaceModel(name string) (*InterfaceModel, bool) {
	for _, im := range m.InterfaceModels {
		if im.Name == name {
			return im, true
		}
	}
	return nil, false
}

// Component returns the service component with the given name
func (m *Model) Component(name string) (*ServiceComponent, bool) {
	for _, c := range m.ServiceComponents {
		if c.Name == name {
			return c, true
		}
	}
	return nil, false
}

// ControlPlane returns the control plane with the given name
func (m *Model) ControlPlane(name string) (*ControlPlane, bool) {
	for _, cp := range m.ControlPlanes {
		if cp.Name == name {
			return cp, true
		}
	}
	return nil, false
}

// Group returns the cluster or resource group of a control plane
func (m *Model) Group(cp, name string) (*Cluster, bool) {
	plane, ok := m.ControlPlane(cp)
	if !ok {
		return nil, false
	}
	for _, g := range plane.Groups() {
		if g.Name == name {
			return g, true
		}
	}
	return nil, false
}
