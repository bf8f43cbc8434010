package stash

import (
	"errors"
	"fmt"

	"github.com/unkn0wn-root/stash/store"
)

// Construction-time error kinds, raised by store.Open and the store
// constructors. Re-exported here so callers can errors.As against the root
// package alone.
type (
	// ConfigError: unknown backend kind or malformed options. Never retryable.
	ConfigError = store.ConfigError
	// EnvError: missing/unwritable path or unreachable service. Fatal at
	// construction.
	EnvError = store.EnvError
)

// Per-operation input validation sentinels. Logical absence and expiration
// are never errors; these cover inputs the cache refuses outright.
var (
	ErrKeyEmpty    = errors.New("stash: empty key")
	ErrKeyTooLong  = errors.New("stash: key exceeds 250 bytes")
	ErrNegativeTTL = errors.New("stash: negative ttl")
)

// BackendError wraps an I/O, network, or protocol failure raised by the
// storage backend during a single operation. It is surfaced to the caller
// as-is; the cache never retries and never converts it into a miss.
type BackendError struct {
	Op  string // "get", "set", "add", "delete", "clear", "clean", "flush", "close"
	Key string // empty for whole-namespace operations
	Err error
}

func (e *BackendError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("stash: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("stash: %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }
