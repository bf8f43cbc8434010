package store

import (
	"errors"
	"testing"
	"time"
)

// memcachedExpiration must flip from relative seconds to an absolute unix
// timestamp at exactly the protocol's 30-day boundary.
func TestMemcachedExpiration(t *testing.T) {
	now := time.Unix(1700000000, 0)

	if got := memcachedExpiration(Entry{}, now); got != 0 {
		t.Fatalf("never-expiring: %d", got)
	}

	// Inside the cap: relative seconds, rounded up.
	e := Entry{ExpiresAt: now.Add(90 * time.Second)}
	if got := memcachedExpiration(e, now); got != 90 {
		t.Fatalf("90s TTL: %d", got)
	}
	e = Entry{ExpiresAt: now.Add(1500 * time.Millisecond)}
	if got := memcachedExpiration(e, now); got != 2 {
		t.Fatalf("fractional TTL rounds up: %d", got)
	}

	// Exactly at the cap: still relative.
	e = Entry{ExpiresAt: now.Add(maxRelativeExpiry)}
	if got := memcachedExpiration(e, now); got != int32(maxRelativeExpiry/time.Second) {
		t.Fatalf("at cap: %d", got)
	}

	// One second past the cap: absolute timestamp.
	e = Entry{ExpiresAt: now.Add(maxRelativeExpiry + time.Second)}
	if got := memcachedExpiration(e, now); got != int32(e.ExpiresAt.Unix()) {
		t.Fatalf("past cap: %d, want absolute %d", got, e.ExpiresAt.Unix())
	}

	// Already expired: shortest representable lifetime, never 0 (which the
	// protocol reads as "never expires").
	e = Entry{ExpiresAt: now.Add(-time.Hour)}
	if got := memcachedExpiration(e, now); got != 1 {
		t.Fatalf("past deadline: %d", got)
	}
}

func TestMemcachedConstructionErrors(t *testing.T) {
	var ce *ConfigError
	if _, err := NewMemcached(Config{}); !errors.As(err, &ce) {
		t.Fatalf("no addresses: %v, want ConfigError", err)
	}

	// Nothing listens on a reserved port; Ping must fail fast.
	var ee *EnvError
	if _, err := NewMemcached(Config{Host: "127.0.0.1", Port: 1, Timeout: 100 * time.Millisecond}); !errors.As(err, &ee) {
		t.Fatalf("dead server: %v, want EnvError", err)
	}
}
