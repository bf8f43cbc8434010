package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

// maxRelativeExpiry is the largest TTL memcached treats as a relative
// offset. Anything above it is reinterpreted by the protocol as an absolute
// unix timestamp, so the client must switch representations at exactly this
// boundary or long TTLs silently expire in the past.
const maxRelativeExpiry = 30 * 24 * time.Hour

// Memcached delegates to a memcached server pool. The daemon expires
// entries itself; Clear flushes the entire server-wide keyspace, not just
// this cache's namespace.
type Memcached struct {
	client *memcache.Client
	prefix string
}

var _ Store = (*Memcached)(nil)

// NewMemcached connects to cfg.Addrs (or cfg.Host:cfg.Port) and verifies the
// servers are reachable.
func NewMemcached(cfg Config) (*Memcached, error) {
	addrs := cfg.Addrs
	if len(addrs) == 0 {
		if cfg.Host == "" {
			return nil, &ConfigError{Field: "addrs", Reason: "memcached backend requires server addresses"}
		}
		port := cfg.Port
		if port == 0 {
			port = 11211
		}
		addrs = []string{fmt.Sprintf("%s:%d", cfg.Host, port)}
	}

	client := memcache.New(addrs...)
	if cfg.Timeout > 0 {
		client.Timeout = cfg.Timeout
	}
	if err := client.Ping(); err != nil {
		return nil, &EnvError{Target: strings.Join(addrs, ","), Reason: "memcached unreachable", Err: err}
	}

	m := &Memcached{client: client}
	if cfg.Namespace != "" {
		m.prefix = cfg.Namespace + ":"
	}
	return m, nil
}

func (m *Memcached) item(key string, e Entry) *memcache.Item {
	return &memcache.Item{
		Key:        m.prefix + key,
		Value:      e.Value,
		Expiration: memcachedExpiration(e, time.Now()),
	}
}

// memcachedExpiration maps an absolute expiration onto the protocol's
// expiry field: 0 for never, relative seconds up to the 30-day cap, and an
// absolute unix timestamp beyond it.
func memcachedExpiration(e Entry, now time.Time) int32 {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	rel := e.ExpiresAt.Sub(now)
	if rel > maxRelativeExpiry {
		return int32(e.ExpiresAt.Unix())
	}
	secs := int32((rel + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1 // already at or past expiry; shortest possible lifetime
	}
	return secs
}

func (m *Memcached) Get(_ context.Context, key string) (Entry, bool, error) {
	item, err := m.client.Get(m.prefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	// The protocol does not report remaining TTL; the daemon already
	// filtered expired entries.
	return Entry{Value: item.Value}, true, nil
}

func (m *Memcached) Set(_ context.Context, key string, e Entry) error {
	return m.client.Set(m.item(key, e))
}

// Add relies on the daemon's atomic add; an expired entry is already gone
// server-side and does not block the write.
func (m *Memcached) Add(_ context.Context, key string, e Entry) (bool, error) {
	err := m.client.Add(m.item(key, e))
	if errors.Is(err, memcache.ErrNotStored) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memcached) Delete(_ context.Context, key string) (bool, error) {
	err := m.client.Delete(m.prefix + key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Clear flushes every entry on the configured servers, including keys
// outside this cache's namespace. Memcached offers no per-prefix wipe.
func (m *Memcached) Clear(_ context.Context) error {
	return m.client.FlushAll()
}

func (m *Memcached) Close(_ context.Context) error { return nil }
