package node

import (
	"fmt"

	"gitlab.com/davidxarnold/burst/pkg/cloud"
)

// Identity is the durable record of a node. Everything needed to rehydrate a
// ManagedNode after a restart lives here, including the login credential that
// backend credential stores forget.
type Identity struct {
	CloudProfile      string                 `yaml:"cloudProfile" json:"cloudProfile"`
	NodeID            string                 `yaml:"nodeId" json:"nodeId"`
	DisplayName       string                 `yaml:"displayName" json:"displayName"`
	TerminationPolicy TerminationPolicy      `yaml:"terminationPolicy" json:"terminationPolicy"`
	Credential        cloud.LoginCredentials `yaml:"credential,omitempty" json:"-"`
	Labels            string                 `yaml:"labels,omitempty" json:"labels,omitempty"`
	Description       string                 `yaml:"description,omitempty" json:"description,omitempty"`
	RemoteFS          string                 `yaml:"remoteFS,omitempty" json:"remoteFS,omitempty"`
	NumExecutors      int                    `yaml:"numExecutors,omitempty" json:"numExecutors,omitempty"`
}

// Validate checks the fields a rehydrated node cannot do without.
func (id Identity) Validate() error {
	if id.CloudProfile == "" {
		return fmt.Errorf("%w: identity for %q has no cloud profile", ErrInvalidNode, id.NodeID)
	}
	if id.NodeID == "" {
		return fmt.Errorf("%w: identity has no node id", ErrInvalidNode)
	}
	if _, err := ParseTerminationPolicy(string(id.TerminationPolicy)); err != nil {
		return err
	}
	return nil
}
