package cloud

import "sync"

// nodeCredentialPrefix namespaces node entries inside a shared CredentialStore.
const nodeCredentialPrefix = "node#"

// CredentialStore is a keyed store of login credentials shared by every node of
// a backend context. Implementations must make ContainsKey and Put atomic per
// key.
type CredentialStore interface {
	ContainsKey(key string) bool
	Put(key string, creds LoginCredentials)
	Get(key string) (LoginCredentials, bool)
}

// conditionalPutter is implemented by stores that can insert a key only when it
// is absent in a single step.
type conditionalPutter interface {
	PutIfAbsent(key string, creds LoginCredentials) bool
}

// NodeCredentialKey returns the store key for the node with the given id.
func NodeCredentialKey(nodeID string) string {
	return nodeCredentialPrefix + nodeID
}

// EnsureCredential inserts creds under key unless the store already holds an
// entry for it, and reports whether an insert happened. Stores without
// PutIfAbsent get a check-then-put, which is only as safe as their per-key
// operations: two concurrent callers may both insert.
func EnsureCredential(store CredentialStore, key string, creds LoginCredentials) bool {
	if cp, ok := store.(conditionalPutter); ok {
		return cp.PutIfAbsent(key, creds)
	}
	if store.ContainsKey(key) {
		return false
	}
	store.Put(key, creds)
	return true
}

// MemoryCredentialStore keeps credentials in process memory only. Entries are
// lost on restart, so durable copies must live elsewhere and be re-seeded.
type MemoryCredentialStore struct {
	mu    sync.RWMutex
	creds map[string]LoginCredentials
}

// NewMemoryCredentialStore creates an empty store.
func NewMemoryCredentialStore() *MemoryCredentialStore {
	return &MemoryCredentialStore{
		creds: make(map[string]LoginCredentials),
	}
}

// ContainsKey reports whether key has an entry.
func (s *MemoryCredentialStore) ContainsKey(key string) bool {
	s.mu.RLock()
	_, ok := s.creds[key]
	s.mu.RUnlock()
	return ok
}

// Put stores creds under key, replacing any previous entry.
func (s *MemoryCredentialStore) Put(key string, creds LoginCredentials) {
	s.mu.Lock()
	s.creds[key] = creds
	s.mu.Unlock()
}

// PutIfAbsent stores creds only if key has no entry and reports whether it did.
func (s *MemoryCredentialStore) PutIfAbsent(key string, creds LoginCredentials) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[key]; ok {
		return false
	}
	s.creds[key] = creds
	return true
}

// Get returns the entry for key.
func (s *MemoryCredentialStore) Get(key string) (LoginCredentials, bool) {
	s.mu.RLock()
	c, ok := s.creds[key]
	s.mu.RUnlock()
	return c, ok
}

// Len returns the number of stored entries.
func (s *MemoryCredentialStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}
