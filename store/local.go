package store

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Local delegates to an in-process TTL cache (jellydator/ttlcache). The
// library expires entries natively, so expired keys are simply absent: no
// enumeration, no cleaning, nothing to flush.
//
// TouchOnHit is disabled so expirations stay absolute; a read never extends
// an entry's lifetime.
type Local struct {
	c *ttlcache.Cache[string, []byte]

	// guards Add's check-then-act; ttlcache has no conditional write.
	addMu sync.Mutex

	stopOnce sync.Once
}

var _ Store = (*Local)(nil)

// NewLocal constructs the cache and starts its expiration janitor. Close
// stops the janitor.
func NewLocal() *Local {
	c := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go c.Start()
	return &Local{c: c}
}

func localTTL(e Entry) time.Duration {
	if e.ExpiresAt.IsZero() {
		return ttlcache.NoTTL
	}
	return time.Until(e.ExpiresAt)
}

func (l *Local) Get(_ context.Context, key string) (Entry, bool, error) {
	item := l.c.Get(key)
	if item == nil {
		return Entry{}, false, nil
	}
	e := Entry{Value: item.Value()}
	if exp := item.ExpiresAt(); !exp.IsZero() {
		e.ExpiresAt = exp
	}
	return e, true, nil
}

func (l *Local) Set(_ context.Context, key string, e Entry) error {
	l.c.Set(key, e.Value, localTTL(e))
	return nil
}

func (l *Local) Add(_ context.Context, key string, e Entry) (bool, error) {
	l.addMu.Lock()
	defer l.addMu.Unlock()
	if l.c.Get(key) != nil {
		return false, nil
	}
	l.c.Set(key, e.Value, localTTL(e))
	return true, nil
}

func (l *Local) Delete(_ context.Context, key string) (bool, error) {
	found := l.c.Get(key) != nil
	l.c.Delete(key)
	return found, nil
}

func (l *Local) Clear(_ context.Context) error {
	l.c.DeleteAll()
	return nil
}

func (l *Local) Close(_ context.Context) error {
	l.stopOnce.Do(l.c.Stop)
	return nil
}
