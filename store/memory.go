package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// persistedEntry is the on-disk shape of one memory-store entry. The whole
// map is written as a single msgpack blob.
type persistedEntry struct {
	Value  []byte `msgpack:"v"`
	Expire int64  `msgpack:"e"` // unix seconds; 0 = never
}

// Memory holds all entries in a process-local map backed by a single file.
// Every operation touches the map only; the file is written on Flush and on
// Close, and only when the map has changed since the last durable write.
//
// Not safe for use from multiple processes against the same file. Within a
// process a mutex serializes access.
type Memory struct {
	path string

	mu      sync.Mutex
	entries map[string]Entry
	dirty   bool

	now func() time.Time
}

var (
	_ Store      = (*Memory)(nil)
	_ Enumerable = (*Memory)(nil)
	_ Flusher    = (*Memory)(nil)
)

// NewMemory opens (or creates) the backing file at path and loads it into
// memory. The parent directory must exist and the file, when present, must
// be a regular file holding a msgpack map previously written by Flush.
func NewMemory(path string) (*Memory, error) {
	if path == "" {
		return nil, &ConfigError{Field: "path", Reason: "memory backend requires a file path"}
	}

	m := &Memory{
		path:    path,
		entries: make(map[string]Entry),
		now:     time.Now,
	}

	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// Probe writability by creating the file now. An empty file loads as
		// an empty map on the next open.
		f, cerr := os.OpenFile(path, os.O_WRONLY|os.O_CREATE, 0o644)
		if cerr != nil {
			return nil, &EnvError{Target: path, Reason: "cannot create backing file", Err: cerr}
		}
		f.Close()
		return m, nil
	case err != nil:
		return nil, &EnvError{Target: path, Reason: "cannot stat backing file", Err: err}
	case info.IsDir():
		return nil, &EnvError{Target: path, Reason: "backing path is a directory, want a regular file"}
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &EnvError{Target: path, Reason: "cannot read backing file", Err: err}
	}
	if len(raw) == 0 {
		return m, nil
	}

	var persisted map[string]persistedEntry
	if err := msgpack.Unmarshal(raw, &persisted); err != nil {
		return nil, &EnvError{Target: path, Reason: "backing file is not a valid snapshot", Err: err}
	}
	for k, pe := range persisted {
		e := Entry{Value: pe.Value}
		if pe.Expire != 0 {
			e.ExpiresAt = time.Unix(pe.Expire, 0)
		}
		m.entries[k] = e
	}
	return m, nil
}

func (m *Memory) Get(_ context.Context, key string) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Entry{}, false, nil
	}
	// Reads purge expired entries opportunistically so the next flush drops
	// them from the snapshot.
	if e.Expired(m.now()) {
		delete(m.entries, key)
		m.dirty = true
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (m *Memory) Set(_ context.Context, key string, e Entry) error {
	m.mu.Lock()
	m.entries[key] = e
	m.dirty = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Add(_ context.Context, key string, e Entry) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.entries[key]; ok && !cur.Expired(m.now()) {
		return false, nil
	}
	m.entries[key] = e
	m.dirty = true
	return true, nil
}

func (m *Memory) Delete(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		return false, nil
	}
	delete(m.entries, key)
	m.dirty = true
	return true, nil
}

func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	m.entries = make(map[string]Entry)
	m.dirty = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) Entries(_ context.Context) ([]KeyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]KeyState, 0, len(m.entries))
	for k, e := range m.entries {
		out = append(out, KeyState{Key: k, ExpiresAt: e.ExpiresAt})
	}
	return out, nil
}

// Flush writes the current map to the backing file when dirty. The write
// goes to a temp file in the same directory followed by a rename, so readers
// of the previous snapshot never observe a partial one.
func (m *Memory) Flush(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirty {
		return nil
	}

	persisted := make(map[string]persistedEntry, len(m.entries))
	for k, e := range m.entries {
		pe := persistedEntry{Value: e.Value}
		if !e.ExpiresAt.IsZero() {
			pe.Expire = e.ExpiresAt.Unix()
		}
		persisted[k] = pe
	}
	raw, err := msgpack.Marshal(persisted)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit snapshot: %w", err)
	}
	m.dirty = false
	return nil
}

// Close flushes dirty state. The previous snapshot stays committed if the
// flush fails; there is no partial-write recovery beyond the rename step.
func (m *Memory) Close(ctx context.Context) error {
	return m.Flush(ctx)
}

// Path returns the backing file location.
func (m *Memory) Path() string { return filepath.Clean(m.path) }
