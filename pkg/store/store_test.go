package store

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"gitlab.com/davidxarnold/burst/pkg/cloud"
	"gitlab.com/davidxarnold/burst/pkg/node"
)

func testIdentity(nodeID, display string) node.Identity {
	return node.Identity{
		CloudProfile:      "lab",
		NodeID:            nodeID,
		DisplayName:       display,
		TerminationPolicy: node.PolicySuspend,
		Credential:        cloud.LoginCredentials{User: "jenkins", PrivateKey: "-----BEGIN KEY-----\nabc\n-----END KEY-----\n"},
		RemoteFS:          "/home/jenkins",
		NumExecutors:      2,
	}
}

func TestOpen_MissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nodes.yaml"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if got := s.List(); len(got) != 0 {
		t.Fatalf("expected empty store, got %d entries", len(got))
	}
}

func TestPutGetPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "nodes.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	b := testIdentity("pve-01/121", "b-pve-01_121")
	a := testIdentity("pve-01/120", "a-pve-01_120")
	for _, id := range []node.Identity{b, a} {
		if err := s.Put(id); err != nil {
			t.Fatalf("Put returned error: %v", err)
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected store file: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	got, err := reopened.Get("pve-01/120")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != a {
		t.Fatalf("identity did not round-trip:\n got %+v\nwant %+v", got, a)
	}

	list := reopened.List()
	if len(list) != 2 || list[0].DisplayName != "a-pve-01_120" {
		t.Fatalf("expected list ordered by display name, got %+v", list)
	}
}

func TestPut_Replaces(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nodes.yaml"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}

	id := testIdentity("zone/i-1", "vm-zone_i-1")
	if err := s.Put(id); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}
	id.Labels = "linux"
	if err := s.Put(id); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if list := s.List(); len(list) != 1 || list[0].Labels != "linux" {
		t.Fatalf("expected a single replaced entry, got %+v", list)
	}
}

func TestPut_RejectsInvalid(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "nodes.yaml"))
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := s.Put(node.Identity{NodeID: "x/1"}); !errors.Is(err, node.ErrInvalidNode) {
		t.Fatalf("expected ErrInvalidNode, got %v", err)
	}
}

func TestDelete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := s.Put(testIdentity("zone/i-1", "vm")); err != nil {
		t.Fatalf("Put returned error: %v", err)
	}

	if err := s.Delete("zone/i-1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := s.Delete("zone/i-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Get("zone/i-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen returned error: %v", err)
	}
	if len(reopened.List()) != 0 {
		t.Fatalf("expected deletion to be persisted")
	}
}

func TestOpen_RejectsUnknownFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	doc := "schemaVersion: v1\nnodes:\n  - cloudProfile: lab\n    nodeId: a/1\n    color: blue\n"
	if err := os.WriteFile(path, []byte(doc), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatalf("expected unknown field to be rejected")
	}
}

func TestOpen_RejectsSchemaVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	if err := os.WriteFile(path, []byte("schemaVersion: v9\nnodes: []\n"), 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	if _, err := Open(path); err == nil {
		t.Fatalf("expected unsupported schemaVersion to be rejected")
	}
}

func TestOpen_EmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nodes.yaml")
	if err := os.WriteFile(path, nil, 0600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if len(s.List()) != 0 {
		t.Fatalf("expected empty store")
	}
}
