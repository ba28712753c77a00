package cloud

// NodeState is the provider-agnostic lifecycle state of a node as reported by
// its backend. Transitions are driven by the backend; callers only observe them.
type NodeState string

// Known node states. Provider specific values that have no mapping are
// reported as StateUnrecognized.
const (
	StateProvisioning NodeState = "PROVISIONING"
	StateRunning      NodeState = "RUNNING"
	StateSuspended    NodeState = "SUSPENDED"
	StateTerminated   NodeState = "TERMINATED"
	StateError        NodeState = "ERROR"
	StateUnrecognized NodeState = "UNRECOGNIZED"
)

// LoginCredentials is the login material for a node.
type LoginCredentials struct {
	User       string `json:"user,omitempty" yaml:"user,omitempty"`
	PrivateKey string `json:"privateKey,omitempty" yaml:"privateKey,omitempty"`
}

// IsZero reports whether neither a user nor a key is set.
func (c LoginCredentials) IsZero() bool {
	return c.User == "" && c.PrivateKey == ""
}

// Metadata holds cloud provider metadata for a node in a provider-agnostic form.
// Fields are a superset of what the supported backends expose so callers never
// depend on provider-specific types.
type Metadata struct {
	ID               string
	Name             string
	State            NodeState
	Location         string // region, zone or hypervisor host
	InstanceType     string
	CapacityType     string // ON_DEMAND, SPOT, FARGATE, STANDARD, etc.
	NodeGroup        string // AWS nodegroup or generic node group
	NodePool         string // GKE node pool or similar construct
	PublicAddresses  []string
	PrivateAddresses []string
	Tags             map[string]string

	// Credentials is only populated on provisioning results. Live lookups
	// generally cannot return login material.
	Credentials *LoginCredentials
}

// Running reports whether md describes a node in StateRunning. A nil
// Metadata is never running.
func (md *Metadata) Running() bool {
	return md != nil && md.State == StateRunning
}

// WithoutCredentials returns a copy of md that shares no memory with it and
// carries no login material.
func (md *Metadata) WithoutCredentials() *Metadata {
	if md == nil {
		return nil
	}
	c := *md
	c.Credentials = nil
	c.PublicAddresses = append([]string(nil), md.PublicAddresses...)
	c.PrivateAddresses = append([]string(nil), md.PrivateAddresses...)
	if md.Tags != nil {
		c.Tags = make(map[string]string, len(md.Tags))
		for k, v := range md.Tags {
			c.Tags[k] = v
		}
	}
	return &c
}
