/*
Copyright 2025 David Arnold
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package node tracks one provisioned compute node: its durable identity,
// lazily fetched metadata and termination.
package node

import (
	"context"
	"fmt"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"gitlab.com/davidxarnold/burst/pkg/cloud"
)

// ErrInvalidNode is returned when a node cannot be built from its inputs.
var ErrInvalidNode = fmt.Errorf("%w: invalid node", cloud.ErrConfiguration)

// TerminationPolicy selects what releasing a node means.
type TerminationPolicy string

const (
	// PolicySuspend stops the node so it can be resumed later.
	PolicySuspend TerminationPolicy = "suspend"
	// PolicyDestroy removes the node permanently.
	PolicyDestroy TerminationPolicy = "destroy"
)

// ParseTerminationPolicy parses a policy name. The empty string means destroy.
func ParseTerminationPolicy(s string) (TerminationPolicy, error) {
	switch TerminationPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicySuspend:
		return PolicySuspend, nil
	case PolicyDestroy, "":
		return PolicyDestroy, nil
	default:
		return "", fmt.Errorf("%w: unknown termination policy %q", ErrInvalidNode, s)
	}
}

// Resolver resolves a cloud profile name to its backend.
type Resolver interface {
	Resolve(ctx context.Context, profile string) (*cloud.Backend, error)
}

// Options are the operator or template choices applied to a new node.
type Options struct {
	Labels       string
	Description  string
	RemoteFS     string
	NumExecutors int
	Policy       TerminationPolicy
}

func (o Options) validate() error {
	if strings.TrimSpace(o.RemoteFS) == "" {
		return fmt.Errorf("%w: remote filesystem root is required", ErrInvalidNode)
	}
	if o.NumExecutors < 1 {
		return fmt.Errorf("%w: number of executors must be at least 1, got %d", ErrInvalidNode, o.NumExecutors)
	}
	if o.Policy != PolicySuspend && o.Policy != PolicyDestroy {
		return fmt.Errorf("%w: unknown termination policy %q", ErrInvalidNode, o.Policy)
	}
	return nil
}

// SanitizeID replaces path separators in a backend node id so it can be used
// inside a node name.
func SanitizeID(id string) string {
	return strings.NewReplacer("/", "_", `\`, "_").Replace(id)
}

// DisplayName derives a node name that stays unique when backends hand out
// colliding names.
func DisplayName(name, id string) string {
	return name + "-" + SanitizeID(id)
}

// ManagedNode is one provisioned compute node. Its identity is fixed at
// creation; metadata is cached after the first successful fetch and never
// refreshed.
type ManagedNode struct {
	id       Identity
	resolver Resolver

	mu       sync.Mutex
	metadata *cloud.Metadata
}

// NewFromMetadata builds a node from a successful provisioning result. The
// result must carry the backend-assigned name, id and credentials. The
// credentials move into the identity; the cached metadata is a copy without
// them.
func NewFromMetadata(resolver Resolver, profile string, md *cloud.Metadata, opts Options) (*ManagedNode, error) {
	if md == nil {
		return nil, fmt.Errorf("%w: no provisioning metadata", ErrInvalidNode)
	}
	if md.Name == "" || md.ID == "" {
		return nil, fmt.Errorf("%w: provisioning result needs a name and an id", ErrInvalidNode)
	}
	if md.Credentials == nil {
		return nil, fmt.Errorf("%w: provisioning result for %s has no credentials", ErrInvalidNode, md.ID)
	}
	if opts.Policy == "" {
		opts.Policy = PolicyDestroy
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}

	n := &ManagedNode{
		id: Identity{
			CloudProfile:      profile,
			NodeID:            md.ID,
			DisplayName:       DisplayName(md.Name, md.ID),
			TerminationPolicy: opts.Policy,
			Credential:        *md.Credentials,
			Labels:            opts.Labels,
			Description:       opts.Description,
			RemoteFS:          opts.RemoteFS,
			NumExecutors:      opts.NumExecutors,
		},
		resolver: resolver,
		metadata: md.WithoutCredentials(),
	}
	return n, nil
}

// FromIdentity rehydrates a node from its durable record, typically after a
// restart. Metadata is fetched on first use.
func FromIdentity(resolver Resolver, id Identity) *ManagedNode {
	if id.TerminationPolicy == "" {
		id.TerminationPolicy = PolicyDestroy
	}
	if id.DisplayName == "" {
		id.DisplayName = SanitizeID(id.NodeID)
	}
	return &ManagedNode{id: id, resolver: resolver}
}

// Identity returns the durable record for the node. Callers persist it.
func (n *ManagedNode) Identity() Identity { return n.id }

// CloudProfile returns the name of the profile that governs the node.
func (n *ManagedNode) CloudProfile() string { return n.id.CloudProfile }

// NodeID returns the backend id of the node.
func (n *ManagedNode) NodeID() string { return n.id.NodeID }

// DisplayName returns the unique node name.
func (n *ManagedNode) DisplayName() string { return n.id.DisplayName }

// Policy returns the termination policy.
func (n *ManagedNode) Policy() TerminationPolicy { return n.id.TerminationPolicy }

// CachedMetadata returns the cached metadata without contacting the backend.
func (n *ManagedNode) CachedMetadata() *cloud.Metadata {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.metadata
}

// Metadata returns the node's metadata, fetching it from the backend on the
// first call. Before fetching, the node's credential is re-seeded into the
// backend's credential store since that store does not survive restarts.
// A failed or empty fetch is not cached.
func (n *ManagedNode) Metadata(ctx context.Context) (*cloud.Metadata, error) {
	if md := n.CachedMetadata(); md != nil {
		return md, nil
	}

	backend, err := n.resolver.Resolve(ctx, n.id.CloudProfile)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", n.id.DisplayName, err)
	}

	if !n.id.Credential.IsZero() {
		key := cloud.NodeCredentialKey(n.id.NodeID)
		if cloud.EnsureCredential(backend.Credentials, key, n.id.Credential) {
			log.WithFields(log.Fields{
				"node":    n.id.DisplayName,
				"profile": n.id.CloudProfile,
			}).Debug("re-seeded node credentials")
		}
	}

	md, err := backend.Provider.NodeMetadata(ctx, n.id.NodeID)
	if err != nil {
		return nil, fmt.Errorf("node %s: fetch metadata: %w", n.id.DisplayName, err)
	}
	if md == nil {
		return nil, nil
	}

	n.mu.Lock()
	n.metadata = md
	n.mu.Unlock()
	return md, nil
}

// Terminate suspends or destroys the node according to its policy. A node
// that is gone or not running is left alone and Terminate returns nil. The
// live state is always read from the backend, not from the cache.
func (n *ManagedNode) Terminate(ctx context.Context) error {
	logger := log.WithFields(log.Fields{
		"node":    n.id.DisplayName,
		"profile": n.id.CloudProfile,
		"policy":  n.id.TerminationPolicy,
	})

	backend, err := n.resolver.Resolve(ctx, n.id.CloudProfile)
	if err != nil {
		return fmt.Errorf("terminate %s: %w", n.id.DisplayName, err)
	}

	md, err := backend.Provider.NodeMetadata(ctx, n.id.NodeID)
	if err != nil {
		return fmt.Errorf("terminate %s: fetch metadata: %w", n.id.DisplayName, err)
	}
	if !md.Running() {
		logger.Infof("node %s is already not running", n.id.DisplayName)
		return nil
	}

	if n.id.TerminationPolicy == PolicySuspend {
		logger.Info("suspending node")
		if err := backend.Provider.SuspendNode(ctx, n.id.NodeID); err != nil {
			return fmt.Errorf("suspend %s: %w", n.id.DisplayName, err)
		}
		return nil
	}

	logger.Info("destroying node")
	if err := backend.Provider.DestroyNode(ctx, n.id.NodeID); err != nil {
		return fmt.Errorf("destroy %s: %w", n.id.DisplayName, err)
	}
	return nil
}
