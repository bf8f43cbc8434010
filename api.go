package stash

import (
	"context"
	"time"

	c "github.com/unkn0wn-root/stash/codec"
	st "github.com/unkn0wn-root/stash/store"
)

// Cache is the backend-agnostic TTL cache API. V is the caller's value
// type; serialization is handled by a pluggable Codec[V] and bytes are
// moved by the Store chosen at construction. The backend never changes
// after construction.
//
// TTLs: 0 means the entry never expires; negative TTLs are rejected. Keys
// are non-empty strings of at most 250 bytes. A missing key and an expired
// entry are the same non-error outcome everywhere.
type Cache[V any] interface {
	// Get returns the stored value when present and not expired. Logical
	// absence is (zero, false, nil); errors are backend failures only.
	Get(ctx context.Context, key string) (v V, ok bool, err error)

	// Set stores value unconditionally (insert-or-replace) with the given TTL.
	Set(ctx context.Context, key string, value V, ttl time.Duration) error

	// Add stores value only if no live entry exists for key. An entry whose
	// expiration has passed does not block the add. Returns false without
	// mutating anything when a live entry is present.
	Add(ctx context.Context, key string, value V, ttl time.Duration) (bool, error)

	// Delete removes the entry. Idempotent: deleting an absent key returns
	// (false, nil), not an error.
	Delete(ctx context.Context, key string) (bool, error)

	// Clear removes every entry in the cache's namespace, expired or not.
	// Destructive; on memcached this flushes the whole server-wide keyspace.
	Clear(ctx context.Context) error

	// Clean purges entries whose expiration has passed and returns how many
	// were removed. A no-op on backends that expire entries themselves.
	Clean(ctx context.Context) (int, error)

	// Flush forces buffered state to durable storage now. A no-op for
	// backends that are already durable (or never will be).
	Flush(ctx context.Context) error

	// Close runs the shutdown clean roll (see Options.CleanChance), flushes
	// buffering backends, and releases resources. Idempotent.
	Close(ctx context.Context) error
}

// Options tune the cache. Only Store is required.
type Options[V any] struct {
	// Required. Build one with store.Open or a store constructor directly.
	Store st.Store

	// Codec (de)serializes V around every backend operation.
	// nil => codec.Msgpack[V] (structural, round-trips nested values).
	Codec c.Codec[V]

	// Logger; nil => NopLogger.
	Logger Logger

	// CleanChance is the probability that Close runs Clean before flushing,
	// amortizing expired-entry cleanup without a scheduled job.
	// 0 => 0.01; negative disables the roll entirely; 1 forces it.
	CleanChance float64

	// CleanSeed seeds the shutdown roll so tests can make it deterministic.
	// 0 => seeded from the clock.
	CleanSeed int64
}

// New builds a Cache over an already-constructed store.
func New[V any](opts Options[V]) (Cache[V], error) {
	return newCache[V](opts)
}

// Open resolves the backend kind in cfg, validates the descriptor, and
// builds the cache over it. Unknown kinds fail with *ConfigError and failed
// descriptor validation with *EnvError, both before any operation runs.
func Open[V any](cfg st.Config, opts Options[V]) (Cache[V], error) {
	s, err := st.Open(cfg)
	if err != nil {
		return nil, err
	}
	opts.Store = s
	return newCache[V](opts)
}

// GetOr returns the stored value for key, or def on logical absence.
// Backend failures still surface as errors.
func GetOr[V any](ctx context.Context, cc Cache[V], key string, def V) (V, error) {
	v, ok, err := cc.Get(ctx, key)
	if err != nil {
		return def, err
	}
	if !ok {
		return def, nil
	}
	return v, nil
}
