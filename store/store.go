// Package store defines the storage abstraction used by stash and ships one
// implementation per backend kind: an in-memory map persisted to a single
// file, a one-file-per-key directory tree, a process-local TTL cache,
// memcached, Redis, and a relational table.
//
// Stores move opaque byte payloads. Serialization happens above this layer;
// implementations MUST return exactly the bytes they were given for a key
// (no re-encoding, no mutation). Expiration is carried as an absolute
// timestamp inside Entry so that backends with native TTL support can derive
// a relative TTL and backends without it can persist the timestamp verbatim.
package store

import (
	"context"
	"time"
)

// Entry is a stored payload plus its absolute expiration.
// A zero ExpiresAt means the entry never expires.
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
}

// Expired reports whether the entry is logically absent at the given instant.
func (e Entry) Expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}

// Store is the primitive capability set every backend variant implements.
// Implementations may return entries whose expiration has already passed
// (the facade treats those as absent), except where the underlying medium
// expires entries itself and never surfaces them.
type Store interface {
	// Get returns (entry, true, nil) when the key holds an entry, expired or
	// not; (Entry{}, false, nil) on a miss. IO/remote failures return an error.
	Get(ctx context.Context, key string) (Entry, bool, error)

	// Set stores the entry unconditionally (insert-or-replace).
	Set(ctx context.Context, key string, e Entry) error

	// Add stores the entry only if the key holds no live entry. An entry
	// whose expiration has passed counts as absent. Returns false without
	// mutating anything when a live entry is already present.
	Add(ctx context.Context, key string, e Entry) (bool, error)

	// Delete removes the key. Returns whether an entry was removed; deleting
	// an absent key is not an error.
	Delete(ctx context.Context, key string) (bool, error)

	// Clear removes every entry in the store's namespace.
	Clear(ctx context.Context) error

	// Close releases resources. For buffering stores this persists any
	// unflushed state first.
	Close(ctx context.Context) error
}

// KeyState is one element of an Enumerable listing.
type KeyState struct {
	Key       string
	ExpiresAt time.Time
}

// Enumerable is implemented by stores that can list their entry set locally
// (memory, files, sql). Backends that expire entries natively do not
// implement it; cleaning them is a no-op.
type Enumerable interface {
	Entries(ctx context.Context) ([]KeyState, error)
}

// Flusher is implemented by stores that buffer state in memory and persist
// it lazily. Flush forces the durable write before Close.
type Flusher interface {
	Flush(ctx context.Context) error
}
