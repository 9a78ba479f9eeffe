package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestClient_Lock(t *testing.T) {
	tmpDir := t.TempDir()
	client := NewClient(tmpDir, ".test.lock", nil)

	unlock, err := client.Lock()
	if err != nil {
		t.Fatalf("Failed to acquire lock: %v", err)
	}

	lockPath := filepath.Join(tmpDir, ".test.lock")
	if _, err := os.Stat(lockPath); os.IsNotExist(err) {
		t.Error("Lock file not created")
	}

	// A second acquisition must wait and eventually give up.
	if _, err := client.LockWithTimeout(30 * time.Millisecond); err == nil {
		t.Error("Expected timeout while lock is held")
	}

	unlock()

	if _, err := os.Stat(lockPath); !os.IsNotExist(err) {
		t.Error("Lock file not removed after unlock")
	}
}

func TestClient_DefaultLockName(t *testing.T) {
	client := NewClient(t.TempDir(), "", nil)
	if client.LockName() != ".flashpad.lock" {
		t.Errorf("unexpected default lock name %q", client.LockName())
	}
}

func TestClient_CommitFlow(t *testing.T) {
	if !IsInstalled() {
		t.Skip("git not installed")
	}

	tmpDir := t.TempDir()
	client := NewClient(tmpDir, "", nil)

	if client.IsRepo() {
		t.Fatal("fresh directory should not be a repo")
	}
	if err := client.Init(); err != nil {
		t.Fatalf("init: %v", err)
	}
	if !client.IsRepo() {
		t.Fatal("expected repo after init")
	}

	count, err := client.CommitCount()
	if err != nil || count != 0 {
		t.Fatalf("expected 0 commits on empty repo, got %d (%v)", count, err)
	}

	if err := os.WriteFile(filepath.Join(tmpDir, "a.md"), []byte("hello"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := client.Add("a.md"); err != nil {
		t.Fatalf("add: %v", err)
	}

	staged, err := client.HasStagedChanges()
	if err != nil || !staged {
		t.Fatalf("expected staged changes, got %v (%v)", staged, err)
	}

	if err := client.Commit("add a"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	staged, err = client.HasStagedChanges()
	if err != nil || staged {
		t.Fatalf("expected clean index, got %v (%v)", staged, err)
	}

	if err := os.Remove(filepath.Join(tmpDir, "a.md")); err != nil {
		t.Fatal(err)
	}
	if err := client.Rm("a.md", "never-existed.md"); err != nil {
		t.Fatalf("rm: %v", err)
	}
	if err := client.Commit("remove a"); err != nil {
		t.Fatalf("commit: %v", err)
	}

	count, err = client.CommitCount()
	if err != nil || count != 2 {
		t.Fatalf("expected 2 commits, got %d (%v)", count, err)
	}
}
