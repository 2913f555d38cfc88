package checkpoint

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFreshOpen(t *testing.T) {
	m, err := Open(t.TempDir(), "shopA")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.State() != StateFresh {
		t.Errorf("state = %s, want fresh", m.State())
	}
	if c := m.Cursor(); c != nil {
		t.Errorf("fresh cursor = %v, want nil", c)
	}
}

func TestAdvanceAndResume(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir, "shopA")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Advance([]int{2, 5}); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if m.State() != StateRunning {
		t.Errorf("state = %s, want running", m.State())
	}

	// simulate a crash: reopen from disk
	m2, err := Open(dir, "shopA")
	if err != nil {
		t.Fatal(err)
	}
	if m2.State() != StateResuming {
		t.Errorf("state = %s, want resuming", m2.State())
	}
	if c := m2.Cursor(); len(c) != 2 || c[0] != 2 || c[1] != 5 {
		t.Errorf("resumed cursor = %v, want [2 5]", c)
	}
}

func TestCompleteDeletesFile(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir, "shopA")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Advance([]int{1, 0}); err != nil {
		t.Fatal(err)
	}
	m.Complete()
	if m.State() != StateComplete {
		t.Errorf("state = %s, want complete", m.State())
	}

	m2, err := Open(dir, "shopA")
	if err != nil {
		t.Fatal(err)
	}
	if m2.State() != StateFresh {
		t.Errorf("after Complete a reopen should be fresh, got %s", m2.State())
	}
}

func TestCheckpointsScopedPerSource(t *testing.T) {
	dir := t.TempDir()

	a, err := Open(dir, "shopA")
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Advance([]int{3}); err != nil {
		t.Fatal(err)
	}

	b, err := Open(dir, "shopB")
	if err != nil {
		t.Fatal(err)
	}
	if b.State() != StateFresh {
		t.Errorf("shopB should be fresh, got %s", b.State())
	}
}

func TestFileIsVersionedJSON(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir, "shopA")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Advance([]int{0, 7}); err != nil {
		t.Fatal(err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "shopA.checkpoint.json"))
	if err != nil {
		t.Fatalf("read checkpoint file: %v", err)
	}
	var rec struct {
		Version int   `json:"version"`
		Cursor  []int `json:"cursor"`
	}
	if err := json.Unmarshal(b, &rec); err != nil {
		t.Fatalf("checkpoint is not JSON: %v", err)
	}
	if rec.Version != 1 {
		t.Errorf("version = %d, want 1", rec.Version)
	}
	if len(rec.Cursor) != 2 || rec.Cursor[1] != 7 {
		t.Errorf("cursor = %v, want [0 7]", rec.Cursor)
	}
}

func TestRejectsCorruptAndNegative(t *testing.T) {
	dir := t.TempDir()

	if err := os.WriteFile(filepath.Join(dir, "shopA.checkpoint.json"), []byte("not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(dir, "shopA"); err == nil {
		t.Error("Open should fail on corrupt checkpoint")
	}

	m, err := Open(dir, "shopB")
	if err != nil {
		t.Fatal(err)
	}
	if err := m.Advance([]int{-1}); err == nil {
		t.Error("Advance should reject negative indices")
	}
}
