package types

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProductVersion is the only input model version this compiler understands
const ProductVersion = 2

// Product identifies the input model schema of a document
type Product struct {
	Version int `yaml:"version"`
}

// Cloud holds cloud-wide naming settings
type Cloud struct {
	Name         string       `yaml:"name"`
	HostnameData HostnameData `yaml:"hostname-data,omitempty"`
}

// HostnameData controls synthesized server hostnames
type HostnameData struct {
	HostPrefix   string `yaml:"host-prefix,omitempty"`
	MemberPrefix string `yaml:"member-prefix,omitempty"`
}

// ControlPlane is a top-level deployment unit grouping clusters and resource groups
type ControlPlane struct {
	Name                    string     `yaml:"name"`
	Prefix                  string     `yaml:"control-plane-prefix,omitempty"`
	RegionName              string     `yaml:"region-name,omitempty"`
	FailureZones            []string   `yaml:"failure-zones,omitempty"`
	CommonServiceComponents []string   `yaml:"common-service-components,omitempty"`
	Clusters                []*Cluster `yaml:"clusters,omitempty"`
	Resources               []*Cluster `yaml:"resources,omitempty"`
}

// Groups returns clusters followed by resource groups, in input order
func (cp *ControlPlane) Groups() []*Cluster {
	groups := make([]*Cluster, 0, len(cp.Clusters)+len(cp.Resources))
	groups = append(groups, cp.Clusters...)
	groups = append(groups, cp.Resources...)
	return groups
}

// GroupKind distinguishes clusters from resource groups
type GroupKind string

const (
	GroupKindCluster  GroupKind = "cluster"
	GroupKindResource GroupKind = "resource"
)

// AllocationPolicy controls how members are spread across failure zones
type AllocationPolicy string

const (
	// AllocationStrict round-robins members across failure zones
	AllocationStrict AllocationPolicy = "strict"
	// AllocationAny takes servers from the zones in order, without preference
	AllocationAny AllocationPolicy = "any"
)

// Valid reports whether the policy is a known value
func (p AllocationPolicy) Valid() bool {
	return p == AllocationStrict || p == AllocationAny
}

// Cluster describes either a cluster or a resource group of a control plane.
// The resolved members are filled in by the scheduler.
type Cluster struct {
	Name              string           `yaml:"name"`
	ClusterPrefix     string           `yaml:"cluster-prefix,omitempty"`
	ResourcePrefix    string           `yaml:"resource-prefix,omitempty"`
	ServerRoles       StringList       `yaml:"server-role,omitempty"`
	MemberCount       *int             `yaml:"member-count,omitempty"`
	MinCount          *int             `yaml:"min-count,omitempty"`
	MaxCount          *int             `yaml:"max-count,omitempty"`
	AllocationPolicy  AllocationPolicy `yaml:"allocation-policy,omitempty"`
	FailureZones      []string         `yaml:"failure-zones,omitempty"`
	ServiceComponents []string         `yaml:"service-components,omitempty"`

	Kind         GroupKind `yaml:"-"`
	ControlPlane string    `yaml:"-"`
	Members      []*Member `yaml:"-"`
}

// Prefix returns the hostname prefix of the group
func (c *Cluster) Prefix() string {
	if c.Kind == GroupKindResource {
		if c.ResourcePrefix != "" {
			return c.ResourcePrefix
		}
		return c.Name
	}
	if c.ClusterPrefix != "" {
		return c.ClusterPrefix
	}
	return c.Name
}

// Policy returns the effective allocation policy
func (c *Cluster) Policy() AllocationPolicy {
	if c.AllocationPolicy != "" {
		return c.AllocationPolicy
	}
	if c.Kind == GroupKindResource {
		return AllocationAny
	}
	return AllocationStrict
}

// Min returns the minimum member count
func (c *Cluster) Min() int {
	switch {
	case c.MemberCount != nil:
		return *c.MemberCount
	case c.MinCount != nil:
		return *c.MinCount
	case c.Kind == GroupKindCluster:
		return 1
	}
	return 0
}

// Max returns the maximum member count, or -1 when unlimited
func (c *Cluster) Max() int {
	switch {
	case c.MemberCount != nil:
		return *c.MemberCount
	case c.MaxCount != nil:
		return *c.MaxCount
	case c.Kind == GroupKindCluster && c.MinCount != nil:
		return *c.MinCount
	}
	return -1
}

// Key identifies the group within the whole model
func (c *Cluster) Key() string {
	return GroupKey(c.ControlPlane, c.Name)
}

// GroupKey joins a control plane and group name
func GroupKey(cp, group string) string {
	return cp + "/" + group
}

// ServerState is the allocation state of a server
type ServerState string

const (
	ServerAvailable ServerState = "available"
	ServerAllocated ServerState = "allocated"
	ServerDeleted   ServerState = "deleted"
)

// Member is a concrete server bound to a member slot of a cluster or resource group
type Member struct {
	ServerID    string `yaml:"server-id"`
	MemberID    int    `yaml:"member-id"`
	FailureZone string `yaml:"failure-zone,omitempty"`
	Hostname    string `yaml:"hostname"`
}

// Server is a physical or virtual machine available to the deployment
type Server struct {
	ID          string `yaml:"id"`
	IPAddr      string `yaml:"ip-addr"`
	Role        string `yaml:"role"`
	ServerGroup string `yaml:"server-group,omitempty"`
	NicMapping  string `yaml:"nic-mapping,omitempty"`
	MacAddr     string `yaml:"mac-addr,omitempty"`
	Rack        string `yaml:"rack,omitempty"`
}

// ServerRole maps servers to an interface model and disk model
type ServerRole struct {
	Name           string `yaml:"name"`
	InterfaceModel string `yaml:"interface-model"`
	DiskModel      string `yaml:"disk-model,omitempty"`
}

// ServerGroup is a node of the zone tree
type ServerGroup struct {
	Name         string   `yaml:"name"`
	ServerGroups []string `yaml:"server-groups,omitempty"`
	Networks     []string `yaml:"networks,omitempty"`
}

// InterfaceModel is a network attachment template for a server role
type InterfaceModel struct {
	Name              string             `yaml:"name"`
	NetworkInterfaces []NetworkInterface `yaml:"network-interfaces"`
}

// NetworkInterface is one interface of an interface model
type NetworkInterface struct {
	Name                string   `yaml:"name"`
	Device              Device   `yaml:"device"`
	NetworkGroups       []string `yaml:"network-groups,omitempty"`
	ForcedNetworkGroups []string `yaml:"forced-network-groups,omitempty"`
}

// Device names the OS device of an interface
type Device struct {
	Name string `yaml:"name"`
}

// DiskModel is referenced by server roles; only its name is interpreted
type DiskModel struct {
	Name         string        `yaml:"name"`
	VolumeGroups []VolumeGroup `yaml:"volume-groups,omitempty"`
}

// VolumeGroup is an LVM volume group of a disk model
type VolumeGroup struct {
	Name            string   `yaml:"name"`
	PhysicalVolumes []string `yaml:"physical-volumes,omitempty"`
}

// NicMapping maps logical port names to bus addresses
type NicMapping struct {
	Name          string         `yaml:"name"`
	PhysicalPorts []PhysicalPort `yaml:"physical-ports,omitempty"`
}

// PhysicalPort is one entry of a nic mapping
type PhysicalPort struct {
	LogicalName string `yaml:"logical-name"`
	Type        string `yaml:"type,omitempty"`
	BusAddress  string `yaml:"bus-address,omitempty"`
}

// Network is an addressable L2/L3 segment belonging to one network group
type Network struct {
	Name         string `yaml:"name"`
	NetworkGroup string `yaml:"network-group"`
	CIDR         string `yaml:"cidr,omitempty"`
	StartAddress string `yaml:"start-address,omitempty"`
	EndAddress   string `yaml:"end-address,omitempty"`
	GatewayIP    string `yaml:"gateway-ip,omitempty"`
	VLANID       int    `yaml:"vlanid,omitempty"`
	TaggedVLAN   *bool  `yaml:"tagged-vlan,omitempty"`
}

// Tagged reports whether the network uses a tagged VLAN (the default)
func (n *Network) Tagged() bool {
	return n.TaggedVLAN == nil || *n.TaggedVLAN
}

// DefaultRoute is the route target naming the default gateway
const DefaultRoute = "default"

// DefaultEndpoints is the component-endpoints entry matching every component
const DefaultEndpoints = "default"

// NetworkGroup is a logical grouping of networks sharing routing and endpoint policy
type NetworkGroup struct {
	Name               string          `yaml:"name"`
	HostnameSuffix     string          `yaml:"hostname-suffix,omitempty"`
	Hostname           bool            `yaml:"hostname,omitempty"`
	ComponentEndpoints []string        `yaml:"component-endpoints,omitempty"`
	Routes             []string        `yaml:"routes,omitempty"`
	Tags               []Tag           `yaml:"tags,omitempty"`
	LoadBalancers      []*LoadBalancer `yaml:"load-balancers,omitempty"`
}

// Suffix returns the hostname suffix used for aliases on this group
func (g *NetworkGroup) Suffix() string {
	if g.HostnameSuffix != "" {
		return g.HostnameSuffix
	}
	return strings.ToLower(g.Name)
}

// HasDefaultRoute reports whether the group provides the default route
func (g *NetworkGroup) HasDefaultRoute() bool {
	for _, r := range g.Routes {
		if r == DefaultRoute {
			return true
		}
	}
	return false
}

// Tag marks a network group as carrying a service-specific network definition.
// It is written either as a bare name or as a single-key map of name to value.
type Tag struct {
	Name  string
	Value interface{}
}

// UnmarshalYAML accepts both tag spellings
func (t *Tag) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		t.Name = node.Value
		return nil
	case yaml.MappingNode:
		if len(node.Content) != 2 {
			return fmt.Errorf("line %d: tag must have exactly one name", node.Line)
		}
		t.Name = node.Content[0].Value
		return node.Content[1].Decode(&t.Value)
	}
	return fmt.Errorf("line %d: invalid tag", node.Line)
}

// MarshalYAML writes the tag back in its short form when it has no value
func (t Tag) MarshalYAML() (interface{}, error) {
	if t.Value == nil {
		return t.Name, nil
	}
	return map[string]interface{}{t.Name: t.Value}, nil
}

// ExternalProvider marks a load balancer served by a fixed external endpoint
const ExternalProvider = "external"

// LoadBalancer is a logical load balancer declared on a network group
type LoadBalancer struct {
	Name              string            `yaml:"name"`
	Provider          string            `yaml:"provider"`
	Roles             []string          `yaml:"roles,omitempty"`
	Components        []string          `yaml:"components,omitempty"`
	SharedAddress     *bool             `yaml:"shared-address,omitempty"`
	ExternalName      string            `yaml:"external-name,omitempty"`
	CertFile          string            `yaml:"cert-file,omitempty"`
	ExternalEndpoints map[string]string `yaml:"external-endpoints,omitempty"`
}

// Shared reports whether every component shares one VIP (the default)
func (lb *LoadBalancer) Shared() bool {
	return lb.SharedAddress == nil || *lb.SharedAddress
}

// ServiceComponent describes a deployable component and its endpoints
type ServiceComponent struct {
	Name        string          `yaml:"name"`
	Mnemonic    string          `yaml:"mnemonic,omitempty"`
	Endpoints   []Endpoint      `yaml:"endpoints,omitempty"`
	Consumes    []string        `yaml:"consumes,omitempty"`
	NetworkTags []NetworkTagReq `yaml:"network-tags,omitempty"`
	Secrets     []string        `yaml:"secrets,omitempty"`
}

// Short returns the mnemonic, falling back to the name
func (c *ServiceComponent) Short() string {
	if c.Mnemonic != "" {
		return strings.ToLower(c.Mnemonic)
	}
	return c.Name
}

// Endpoint is a port a component listens on
type Endpoint struct {
	Port          int      `yaml:"port"`
	VIPPort       int      `yaml:"vip-port,omitempty"`
	HasVIP        bool     `yaml:"has-vip,omitempty"`
	Roles         []string `yaml:"roles,omitempty"`
	TLSTerminator bool     `yaml:"tls-terminator,omitempty"`
	HealthCheck   string   `yaml:"health-check,omitempty"`
	BackupMode    bool     `yaml:"vip-backup-mode,omitempty"`
	Protocol      string   `yaml:"protocol,omitempty"`
}

// NetworkTagReq binds a component to network groups carrying a tag
type NetworkTagReq struct {
	Name     string `yaml:"name"`
	Required bool   `yaml:"required,omitempty"`
	Expected bool   `yaml:"expected,omitempty"`
}

// PassThrough is opaque data copied into the resolved model
type PassThrough struct {
	Global  map[string]interface{} `yaml:"global,omitempty"`
	Servers []ServerPassThrough    `yaml:"servers,omitempty"`
}

// ServerPassThrough is opaque data for one server
type ServerPassThrough struct {
	ID   string                 `yaml:"id"`
	Data map[string]interface{} `yaml:"data"`
}

// FirewallRule applies a list of rules to every network in the named groups
type FirewallRule struct {
	Name          string       `yaml:"name"`
	NetworkGroups []string     `yaml:"network-groups"`
	Rules         []FirewallRT `yaml:"rules"`
}

// FirewallRT is a single allow rule
type FirewallRT struct {
	Type           string `yaml:"type"`
	RemoteIPPrefix string `yaml:"remote-ip-prefix"`
	PortRangeMin   int    `yaml:"port-range-min"`
	PortRangeMax   int    `yaml:"port-range-max"`
	Protocol       string `yaml:"protocol"`
}

// StringList decodes either a scalar or a sequence of strings
type StringList []string

// UnmarshalYAML accepts "a" as well as ["a", "b"]
func (l *StringList) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*l = StringList{node.Value}
		return nil
	}
	var list []string
	if err := node.Decode(&list); err != nil {
		return err
	}
	*l = list
	return nil
}

// Contains reports whether s is in the list
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}
