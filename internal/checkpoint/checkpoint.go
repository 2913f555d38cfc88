// Package checkpoint persists crawl iteration position so an
// interrupted run resumes without reprocessing completed work and
// without skipping unprocessed work.
//
// The cursor is deliberately a flat ordered tuple of non-negative
// integers stored as versioned JSON, so an operator can inspect,
// hand-edit or simply delete the file. A stale deleted checkpoint only
// costs a harmless full re-crawl.
package checkpoint

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
)

// State of the checkpoint lifecycle for one source.
type State string

const (
	StateFresh    State = "fresh"    // no prior cursor on disk
	StateResuming State = "resuming" // cursor loaded, iteration not yet started
	StateRunning  State = "running"  // cursor being advanced
	StateComplete State = "complete" // sequence exhausted, file removed
)

const fileVersion = 1

type record struct {
	Version int   `json:"version"`
	Cursor  []int `json:"cursor"`
}

// Manager owns one source's durable cursor. Writes are synchronous:
// the file is fully written and fsynced before Advance returns, so a
// crash after a write re-does at most one unit of work.
type Manager struct {
	source string
	path   string
	state  State
	cursor []int
}

// Open loads the checkpoint for the named source from dir, creating
// the directory as needed. A missing file means a fresh crawl.
func Open(dir, source string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure state dir: %w", err)
	}

	m := &Manager{
		source: source,
		path:   filepath.Join(dir, fileName(source)),
		state:  StateFresh,
	}

	b, err := os.ReadFile(m.path)
	if errors.Is(err, os.ErrNotExist) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint %s: %w", m.path, err)
	}

	var rec record
	if err := json.Unmarshal(b, &rec); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", m.path, err)
	}
	if rec.Version != fileVersion {
		return nil, fmt.Errorf("checkpoint %s: unsupported version %d", m.path, rec.Version)
	}
	for _, v := range rec.Cursor {
		if v < 0 {
			return nil, fmt.Errorf("checkpoint %s: negative cursor index %d", m.path, v)
		}
	}

	m.state = StateResuming
	m.cursor = rec.Cursor
	log.Printf("[checkpoint] %s: resuming from cursor %v", source, rec.Cursor)
	return m, nil
}

// State reports where the lifecycle currently stands.
func (m *Manager) State() State { return m.state }

// Cursor returns the position of the next unit of work to process;
// nil means start from the beginning.
func (m *Manager) Cursor() []int {
	return append([]int(nil), m.cursor...)
}

// Advance durably records cursor as the next unit to process. It must
// be called after a unit completes and before the next one starts;
// failure is fatal for the run, since continuing with an unpersisted
// cursor would silently skip work on resume.
func (m *Manager) Advance(cursor []int) error {
	for _, v := range cursor {
		if v < 0 {
			return fmt.Errorf("negative cursor index %d", v)
		}
	}

	b, err := json.Marshal(record{Version: fileVersion, Cursor: cursor})
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp := m.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open checkpoint tmp: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		_ = f.Close()
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync checkpoint: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}

	m.state = StateRunning
	m.cursor = append([]int(nil), cursor...)
	return nil
}

// Complete removes the checkpoint after the whole sequence has been
// drained. Deletion failure is non-fatal: a leftover file only makes
// the next run resume at the final cursor, which is empty work.
func (m *Manager) Complete() {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[checkpoint] %s: delete failed (ignored): %v", m.source, err)
	}
	m.state = StateComplete
	m.cursor = nil
}

// Reset discards a source's saved cursor so the next run starts from
// the beginning. Removing a file that does not exist is not an error.
func Reset(dir, source string) error {
	err := os.Remove(filepath.Join(dir, fileName(source)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("reset checkpoint for %s: %w", source, err)
	}
	return nil
}

func fileName(source string) string {
	s := strings.ReplaceAll(source, string(filepath.Separator), "_")
	return s + ".checkpoint.json"
}
