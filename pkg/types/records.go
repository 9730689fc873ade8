package types

// Persisted state namespaces
const (
	NamespaceAddresses   = "ip_addresses"
	NamespaceAllocations = "server_allocations"
	NamespaceCIDR        = "cidr"
	NamespacePrivateData = "private_data"
)

// AllocationRecord is the persisted assignment of a server to a member slot
type AllocationRecord struct {
	State        ServerState `yaml:"state"`
	ControlPlane string      `yaml:"cp-name,omitempty"`
	Group        string      `yaml:"group-name,omitempty"`
	MemberID     int         `yaml:"member-id,omitempty"`
}

// Active reports whether the record holds a member slot
func (r *AllocationRecord) Active() bool {
	return r.State == ServerAllocated || r.State == ServerDeleted
}

// AddressRecord is the persisted owner of one address
type AddressRecord struct {
	Network  string `yaml:"network"`
	UsedBy   string `yaml:"used-by"`
	Host     string `yaml:"host"`
	ServerID string `yaml:"server-id,omitempty"`
}

// PrivateRecord is one persisted secret
type PrivateRecord struct {
	Value     string `yaml:"value"`
	Encrypted bool   `yaml:"encrypted"`
}
