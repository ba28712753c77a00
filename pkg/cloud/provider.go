package cloud

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Provider is implemented by compute backends capable of describing, suspending
// and destroying a node by id.
type Provider interface {
	// NodeMetadata returns live metadata for id, or nil with no error when the
	// backend no longer knows the node.
	NodeMetadata(ctx context.Context, id string) (*Metadata, error)
	SuspendNode(ctx context.Context, id string) error
	DestroyNode(ctx context.Context, id string) error
}

// ProviderFactory creates a Provider for a cloud profile.
type ProviderFactory func(ctx context.Context, profile Profile) (Provider, error)

// Provider type names used in profiles and as Kubernetes providerID schemes.
const (
	ProviderAWS     = "aws"
	ProviderGCE     = "gce"
	ProviderProxmox = "proxmox"
	ProviderMemory  = "memory"
)

var (
	providerMu       sync.RWMutex
	providerRegistry = map[string]ProviderFactory{}
)

// RegisterProvider registers a provider factory under the given type name.
// It is typically called from init() functions in provider-specific files.
func RegisterProvider(name string, factory ProviderFactory) {
	providerMu.Lock()
	providerRegistry[name] = factory
	providerMu.Unlock()
}

// LookupProvider returns the factory registered for name, or nil.
func LookupProvider(name string) ProviderFactory {
	providerMu.RLock()
	defer providerMu.RUnlock()
	return providerRegistry[name]
}

// Profile is a named cloud configuration selecting a backend and account.
type Profile struct {
	Name                  string        `mapstructure:"-" yaml:"-"`
	Type                  string        `mapstructure:"type" yaml:"type"`
	Region                string        `mapstructure:"region" yaml:"region,omitempty"`
	Project               string        `mapstructure:"project" yaml:"project,omitempty"`
	Endpoint              string        `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	TokenID               string        `mapstructure:"tokenID" yaml:"tokenID,omitempty"`
	Secret                string        `mapstructure:"secret" yaml:"secret,omitempty"`
	InsecureSkipTLSVerify bool          `mapstructure:"insecureSkipTLSVerify" yaml:"insecureSkipTLSVerify,omitempty"`
	TaskTimeout           time.Duration `mapstructure:"taskTimeout" yaml:"taskTimeout,omitempty"`
}

// Backend is one backend context: the provider for a profile together with the
// credential store shared by all of the profile's nodes.
type Backend struct {
	Profile     Profile
	Provider    Provider
	Credentials CredentialStore
}

// Registry resolves cloud profile names to backends. Backends are created on
// first use and reused afterwards.
type Registry struct {
	mu       sync.Mutex
	profiles map[string]Profile
	backends map[string]*Backend
}

// NewRegistry creates a Registry over the given profiles, keyed by name.
func NewRegistry(profiles map[string]Profile) *Registry {
	r := &Registry{
		profiles: make(map[string]Profile, len(profiles)),
		backends: make(map[string]*Backend),
	}
	for name, p := range profiles {
		p.Name = name
		r.profiles[name] = p
	}
	return r
}

// Add registers an already constructed backend under its profile name,
// replacing any configured profile of the same name.
func (r *Registry) Add(b *Backend) {
	if b.Credentials == nil {
		b.Credentials = NewMemoryCredentialStore()
	}
	r.mu.Lock()
	r.profiles[b.Profile.Name] = b.Profile
	r.backends[b.Profile.Name] = b
	r.mu.Unlock()
}

// Profile returns the configured profile called name.
func (r *Registry) Profile(name string) (Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.profiles[name]
	return p, ok
}

// Profiles returns the configured profile names in sorted order.
func (r *Registry) Profiles() []string {
	r.mu.Lock()
	names := make([]string, 0, len(r.profiles))
	for name := range r.profiles {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)
	return names
}

// Resolve returns the backend for the named profile. A failed provider
// construction is not cached.
func (r *Registry) Resolve(ctx context.Context, name string) (*Backend, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.backends[name]; ok {
		return b, nil
	}

	profile, ok := r.profiles[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProfileNotFound, name)
	}

	factory := LookupProvider(profile.Type)
	if factory == nil {
		return nil, fmt.Errorf("%w: profile %q has type %q", ErrUnknownProviderType, name, profile.Type)
	}

	provider, err := factory(ctx, profile)
	if err != nil {
		return nil, fmt.Errorf("create %s provider for profile %q: %w", profile.Type, name, err)
	}

	b := &Backend{
		Profile:     profile,
		Provider:    provider,
		Credentials: NewMemoryCredentialStore(),
	}
	r.backends[name] = b
	return b, nil
}
