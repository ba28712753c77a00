// Package store persists node identities so managed nodes can be rehydrated
// after a restart.
package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/mitchellh/go-homedir"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"gitlab.com/davidxarnold/burst/pkg/node"
)

const schemaVersion = "v1"

// ErrNotFound is returned when no identity is stored for a node id.
var ErrNotFound = errors.New("node identity not found")

// document is the on-disk layout.
type document struct {
	SchemaVersion string          `yaml:"schemaVersion"`
	Nodes         []node.Identity `yaml:"nodes"`
}

// FileStore keeps identities in a single YAML file. The file holds private
// keys and is written with mode 0600.
type FileStore struct {
	mu    sync.RWMutex
	path  string
	nodes map[string]node.Identity
}

// DefaultPath returns $HOME/.burst/nodes.yaml.
func DefaultPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".burst", "nodes.yaml"), nil
}

// Open loads the store at path, or at DefaultPath when path is empty. A missing
// file yields an empty store.
func Open(path string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand store path %q: %w", path, err)
	}

	s := &FileStore{path: expanded, nodes: make(map[string]node.Identity)}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the file backing the store.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) load() error {
	// #nosec G304 - path is chosen by the operator
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read node store: %w", err)
	}

	doc, err := decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse node store %s: %w", s.path, err)
	}

	for _, id := range doc.Nodes {
		if err := id.Validate(); err != nil {
			return fmt.Errorf("node store %s: %w", s.path, err)
		}
		s.nodes[id.NodeID] = id
	}

	log.Debugf("loaded %d node identities from %s", len(s.nodes), s.path)
	return nil
}

// decode unmarshals YAML into a document while enforcing known fields.
func decode(r io.Reader) (*document, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc document
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return &doc, nil
		}
		return nil, err
	}
	if doc.SchemaVersion != "" && doc.SchemaVersion != schemaVersion {
		return nil, fmt.Errorf("unsupported schemaVersion %q", doc.SchemaVersion)
	}
	return &doc, nil
}

// Get returns the identity stored for nodeID.
func (s *FileStore) Get(nodeID string) (node.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.nodes[nodeID]
	if !ok {
		return node.Identity{}, fmt.Errorf("%w: %q", ErrNotFound, nodeID)
	}
	return id, nil
}

// List returns all identities ordered by display name.
func (s *FileStore) List() []node.Identity {
	s.mu.RLock()
	out := make([]node.Identity, 0, len(s.nodes))
	for _, id := range s.nodes {
		out = append(out, id)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayName == out[j].DisplayName {
			return out[i].NodeID < out[j].NodeID
		}
		return out[i].DisplayName < out[j].DisplayName
	})
	return out
}

// Put inserts or replaces the identity for id.NodeID and saves the file.
func (s *FileStore) Put(id node.Identity) error {
	if err := id.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prev, existed := s.nodes[id.NodeID]
	s.nodes[id.NodeID] = id
	if err := s.save(); err != nil {
		if existed {
			s.nodes[id.NodeID] = prev
		} else {
			delete(s.nodes, id.NodeID)
		}
		return err
	}
	return nil
}

// Delete removes the identity for nodeID and saves the file.
func (s *FileStore) Delete(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.nodes[nodeID]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, nodeID)
	}
	delete(s.nodes, nodeID)
	if err := s.save(); err != nil {
		s.nodes[nodeID] = prev
		return err
	}
	return nil
}

// save writes the store atomically. Callers hold s.mu.
func (s *FileStore) save() error {
	doc := document{SchemaVersion: schemaVersion, Nodes: make([]node.Identity, 0, len(s.nodes))}
	for _, id := range s.nodes {
		doc.Nodes = append(doc.Nodes, id)
	}
	sort.Slice(doc.Nodes, func(i, j int) bool { return doc.Nodes[i].NodeID < doc.Nodes[j].NodeID })

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("marshal node store: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".nodes-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp store file: %w", err)
	}
	defer func() {
		// Best-effort cleanup; after a successful rename the file is gone.
		_ = os.Remove(tmp.Name())
	}()

	if err := tmp.Chmod(0600); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp store file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp store file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace node store: %w", err)
	}
	return nil
}
