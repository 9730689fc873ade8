package types

import "sort"

// Resolved is the fully resolved topology handed to the builders
type Resolved struct {
	RunID      string                         `yaml:"-"`
	Cloud      string                         `yaml:"cloud"`
	Servers    []*ResolvedServer              `yaml:"servers"`
	Groups     []*ResolvedGroup               `yaml:"groups"`
	VIPs       []*VIP                         `yaml:"vips,omitempty"`
	Components map[string]*ComponentEndpoints `yaml:"components,omitempty"`
	Global     map[string]interface{}         `yaml:"pass-through,omitempty"`
}

// NewResolved returns an empty resolved model
func NewResolved(runID, cloud string) *Resolved {
	return &Resolved{
		RunID:      runID,
		Cloud:      cloud,
		Components: make(map[string]*ComponentEndpoints),
	}
}

// Server returns the resolved server with the given id
func (r *Resolved) Server(id string) (*ResolvedServer, bool) {
	for _, s := range r.Servers {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// ServersRunning returns the servers of a control plane running a component
func (r *Resolved) ServersRunning(cp, component string) []*ResolvedServer {
	var out []*ResolvedServer
	for _, s := range r.Servers {
		if s.ControlPlane == cp && s.Runs(component) {
			out = append(out, s)
		}
	}
	return out
}

// SortServers orders servers by hostname so output is stable
func (r *Resolved) SortServers() {
	sort.SliceStable(r.Servers, func(i, j int) bool {
		return r.Servers[i].Hostname < r.Servers[j].Hostname
	})
}

// ResolvedGroup is a cluster or resource group with its allocated members
type ResolvedGroup struct {
	Name         string    `yaml:"name"`
	ControlPlane string    `yaml:"control-plane"`
	Kind         GroupKind `yaml:"kind"`
	Members      []*Member `yaml:"members"`
	Components   []string  `yaml:"service-components"`
}

// ResolvedServer is an allocated server with its networks and routes
type ResolvedServer struct {
	ID           string                 `yaml:"id"`
	Hostname     string                 `yaml:"hostname"`
	Role         string                 `yaml:"role"`
	ControlPlane string                 `yaml:"control-plane"`
	Group        string                 `yaml:"group"`
	MemberID     int                    `yaml:"member-id"`
	FailureZone  string                 `yaml:"failure-zone,omitempty"`
	IPAddr       string                 `yaml:"ip-addr"`
	Components   []string               `yaml:"components"`
	Networks     []*ServerNetwork       `yaml:"networks,omitempty"`
	PassThrough  map[string]interface{} `yaml:"pass-through,omitempty"`
}

// Runs reports whether the server runs a component
func (s *ResolvedServer) Runs(component string) bool {
	for _, c := range s.Components {
		if c == component {
			return true
		}
	}
	return false
}

// NetworkIn returns the server network belonging to a network group
func (s *ResolvedServer) NetworkIn(group string) (*ServerNetwork, bool) {
	for _, n := range s.Networks {
		if n.NetworkGroup == group {
			return n, true
		}
	}
	return nil, false
}

// OnNetwork returns the server network with the given network name
func (s *ResolvedServer) OnNetwork(name string) (*ServerNetwork, bool) {
	for _, n := range s.Networks {
		if n.Network == name {
			return n, true
		}
	}
	return nil, false
}

// ServerNetwork is one network attached to a server
type ServerNetwork struct {
	Network      string   `yaml:"network"`
	NetworkGroup string   `yaml:"network-group"`
	Interface    string   `yaml:"interface,omitempty"`
	Device       string   `yaml:"device,omitempty"`
	CIDR         string   `yaml:"cidr,omitempty"`
	Address      string   `yaml:"address,omitempty"`
	Gateway      string   `yaml:"gateway,omitempty"`
	VLANID       int      `yaml:"vlanid,omitempty"`
	Tagged       bool     `yaml:"tagged-vlan"`
	Alias        string   `yaml:"alias,omitempty"`
	Hostname     bool     `yaml:"hostname,omitempty"`
	DefaultRoute bool     `yaml:"default-route,omitempty"`
	Components   []string `yaml:"components,omitempty"`
	Routes       []*Route `yaml:"routes,omitempty"`
}

// DefaultCIDR is the destination of the default route
const DefaultCIDR = "0.0.0.0/0"

// Route is a routing table entry leaving through a server network
type Route struct {
	Network  string `yaml:"network,omitempty"`
	CIDR     string `yaml:"cidr"`
	Gateway  string `yaml:"gateway,omitempty"`
	Implicit bool   `yaml:"implicit,omitempty"`
	Default  bool   `yaml:"default,omitempty"`
}

// VIP is a load-balanced endpoint for one component and role
type VIP struct {
	Component    string   `yaml:"component"`
	LoadBalancer string   `yaml:"load-balancer"`
	Provider     string   `yaml:"provider"`
	ControlPlane string   `yaml:"control-plane"`
	Network      string   `yaml:"network,omitempty"`
	NetworkGroup string   `yaml:"network-group"`
	Address      string   `yaml:"address"`
	HostPort     int      `yaml:"host-port"`
	VIPPort      int      `yaml:"vip-port"`
	Role         string   `yaml:"role"`
	Aliases      []string `yaml:"aliases,omitempty"`
	TLS          bool     `yaml:"tls,omitempty"`
	CertFile     string   `yaml:"cert-file,omitempty"`
	HealthCheck  string   `yaml:"health-check,omitempty"`
	BackupMode   bool     `yaml:"backup-mode,omitempty"`
	Implicit     bool     `yaml:"-"`
}

// ComponentEndpoints is the bind/access view of one component used by renderers
type ComponentEndpoints struct {
	Bind     []*BindEndpoint     `yaml:"bind,omitempty"`
	Access   []*AccessEndpoint   `yaml:"access,omitempty"`
	Consumes []*ConsumedEndpoint `yaml:"consumes,omitempty"`
	Secrets  map[string]string   `yaml:"secrets,omitempty"`
}

// BindEndpoint is where a component listens on a server
type BindEndpoint struct {
	Host    string `yaml:"host"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// AccessEndpoint is how clients reach a component for one role
type AccessEndpoint struct {
	Role    string   `yaml:"role"`
	Host    string   `yaml:"host"`
	Address string   `yaml:"address"`
	Port    int      `yaml:"port"`
	TLS     bool     `yaml:"tls,omitempty"`
	Members []string `yaml:"members,omitempty"`
}

// ConsumedEndpoint is an access endpoint seen from a consuming component
type ConsumedEndpoint struct {
	Component string            `yaml:"component"`
	Access    []*AccessEndpoint `yaml:"access"`
}
