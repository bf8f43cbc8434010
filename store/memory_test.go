package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestMemory(t *testing.T) (*Memory, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "snapshot.db")
	m, err := NewMemory(path)
	if err != nil {
		t.Fatalf("NewMemory: %v", err)
	}
	return m, path
}

func TestMemoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t)

	e := Entry{Value: []byte("payload")}
	if err := m.Set(ctx, "k", e); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, ok, err := m.Get(ctx, "k")
	if err != nil || !ok || string(got.Value) != "payload" {
		t.Fatalf("Get: ok=%v err=%v got=%q", ok, err, got.Value)
	}
}

// TestMemoryOpportunisticPurge: reading an expired entry removes it and
// marks the store dirty so the next flush drops it.
func TestMemoryOpportunisticPurge(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t)

	base := time.Now()
	m.now = func() time.Time { return base }
	if err := m.Set(ctx, "k", Entry{Value: []byte("v"), ExpiresAt: base.Add(time.Second)}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if m.dirty {
		t.Fatalf("dirty after flush")
	}

	m.now = func() time.Time { return base.Add(time.Minute) }
	if _, ok, err := m.Get(ctx, "k"); err != nil || ok {
		t.Fatalf("expired Get: ok=%v err=%v", ok, err)
	}
	if !m.dirty {
		t.Fatalf("purge did not mark the store dirty")
	}
	if _, present := m.entries["k"]; present {
		t.Fatalf("expired entry still in map")
	}
}

func TestMemoryAddTreatsExpiredAsAbsent(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t)

	base := time.Now()
	m.now = func() time.Time { return base }
	if err := m.Set(ctx, "k", Entry{Value: []byte("old"), ExpiresAt: base.Add(time.Second)}); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// Live entry blocks the add.
	ok, err := m.Add(ctx, "k", Entry{Value: []byte("new")})
	if err != nil || ok {
		t.Fatalf("Add over live entry: ok=%v err=%v", ok, err)
	}

	// After the deadline the same add wins.
	m.now = func() time.Time { return base.Add(time.Minute) }
	ok, err = m.Add(ctx, "k", Entry{Value: []byte("new")})
	if err != nil || !ok {
		t.Fatalf("Add over expired entry: ok=%v err=%v", ok, err)
	}
	got, ok, _ := m.Get(ctx, "k")
	if !ok || string(got.Value) != "new" {
		t.Fatalf("Get after add: ok=%v got=%q", ok, got.Value)
	}
}

// TestMemoryFlushReload: the snapshot written on Close restores the same
// entries, including absolute expirations, on the next open.
func TestMemoryFlushReload(t *testing.T) {
	ctx := context.Background()
	m, path := newTestMemory(t)

	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	if err := m.Set(ctx, "eternal", Entry{Value: []byte("a")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Set(ctx, "bounded", Entry{Value: []byte("b"), ExpiresAt: exp}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m2, err := NewMemory(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, ok, err := m2.Get(ctx, "bounded")
	if err != nil || !ok || string(got.Value) != "b" {
		t.Fatalf("bounded after reload: ok=%v err=%v", ok, err)
	}
	if !got.ExpiresAt.Equal(exp) {
		t.Fatalf("expiration lost in snapshot: got %v want %v", got.ExpiresAt, exp)
	}
	if got, ok, _ := m2.Get(ctx, "eternal"); !ok || !got.ExpiresAt.IsZero() {
		t.Fatalf("eternal entry mangled: ok=%v exp=%v", ok, got.ExpiresAt)
	}
}

// A clean store skips the durable write entirely.
func TestMemoryFlushSkipsWhenClean(t *testing.T) {
	ctx := context.Background()
	m, path := newTestMemory(t)

	if err := m.Set(ctx, "k", Entry{Value: []byte("v")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	before, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}

	// Corrupting mtime detection is flaky; instead remove the file and
	// verify a clean flush does not recreate it.
	if err := os.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("second Flush: %v", err)
	}
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("clean flush rewrote the snapshot (size was %d)", before.Size())
	}
}

func TestMemoryClearAndEntries(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t)

	for _, k := range []string{"a", "b"} {
		if err := m.Set(ctx, k, Entry{Value: []byte(k)}); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}
	states, err := m.Entries(ctx)
	if err != nil || len(states) != 2 {
		t.Fatalf("Entries: n=%d err=%v", len(states), err)
	}
	if err := m.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	states, err = m.Entries(ctx)
	if err != nil || len(states) != 0 {
		t.Fatalf("Entries after Clear: n=%d err=%v", len(states), err)
	}
}

func TestMemoryDelete(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestMemory(t)

	found, err := m.Delete(ctx, "absent")
	if err != nil || found {
		t.Fatalf("Delete absent: found=%v err=%v", found, err)
	}
	if err := m.Set(ctx, "k", Entry{Value: []byte("v")}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	found, err = m.Delete(ctx, "k")
	if err != nil || !found {
		t.Fatalf("Delete present: found=%v err=%v", found, err)
	}
}

func TestMemoryConstructionErrors(t *testing.T) {
	var ce *ConfigError
	if _, err := NewMemory(""); !errors.As(err, &ce) {
		t.Fatalf("empty path: %v, want ConfigError", err)
	}

	var ee *EnvError
	if _, err := NewMemory(filepath.Join(t.TempDir(), "missing", "f.db")); !errors.As(err, &ee) {
		t.Fatalf("missing parent dir: %v, want EnvError", err)
	}
	if _, err := NewMemory(t.TempDir()); !errors.As(err, &ee) {
		t.Fatalf("directory path: %v, want EnvError", err)
	}

	// Corrupt snapshot blob.
	bad := filepath.Join(t.TempDir(), "bad.db")
	if err := os.WriteFile(bad, []byte("definitely not msgpack \xc1"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := NewMemory(bad); !errors.As(err, &ee) {
		t.Fatalf("corrupt snapshot: %v, want EnvError", err)
	}
}
