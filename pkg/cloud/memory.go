package cloud

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

var errUnknownMemoryNode = errors.New("unknown node")

// MemoryProvider is an in-process backend for tests and embedding callers. It
// keeps nothing across restarts, so it is not registered as a profile type; add
// it to a Registry with Registry.Add.
type MemoryProvider struct {
	mu    sync.Mutex
	nodes map[string]*Metadata
}

// NewMemoryProvider creates an empty MemoryProvider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{nodes: make(map[string]*Metadata)}
}

// Provision creates a running node called name and returns its metadata,
// including creds, the way a real provisioning result would.
func (p *MemoryProvider) Provision(name string, creds LoginCredentials) *Metadata {
	md := &Metadata{
		ID:       ProviderMemory + "/" + uuid.NewString(),
		Name:     name,
		State:    StateRunning,
		Location: ProviderMemory,
	}

	p.mu.Lock()
	p.nodes[md.ID] = md.WithoutCredentials()
	p.mu.Unlock()

	md.Credentials = &creds
	return md
}

// SetState forces the state of a node, or removes it when state is empty.
func (p *MemoryProvider) SetState(id string, state NodeState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if state == "" {
		delete(p.nodes, id)
		return
	}
	if md, ok := p.nodes[id]; ok {
		md.State = state
	}
}

// NodeMetadata returns a copy of the node's metadata, or nil if unknown.
func (p *MemoryProvider) NodeMetadata(_ context.Context, id string) (*Metadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	md, ok := p.nodes[id]
	if !ok {
		return nil, nil
	}
	return md.WithoutCredentials(), nil
}

// SuspendNode marks the node suspended.
func (p *MemoryProvider) SuspendNode(_ context.Context, id string) error {
	return p.transition(id, StateSuspended)
}

// DestroyNode marks the node terminated.
func (p *MemoryProvider) DestroyNode(_ context.Context, id string) error {
	return p.transition(id, StateTerminated)
}

func (p *MemoryProvider) transition(id string, state NodeState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	md, ok := p.nodes[id]
	if !ok {
		return backendError("transition node", id, errUnknownMemoryNode)
	}
	md.State = state
	return nil
}
