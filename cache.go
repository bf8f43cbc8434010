package stash

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	c "github.com/unkn0wn-root/stash/codec"
	st "github.com/unkn0wn-root/stash/store"
)

const (
	// maxKeyLen mirrors the memcached protocol limit and is enforced on all
	// backends so keys stay portable between them.
	maxKeyLen = 250

	// defaultCleanChance is the probability that Close sweeps expired
	// entries before flushing.
	defaultCleanChance = 0.01
)

type cache[V any] struct {
	store st.Store
	codec c.Codec[V]
	log   Logger

	cleanChance float64
	rng         *rand.Rand

	// injectable clock for expiry decisions
	now func() time.Time

	closeOnce sync.Once
	closeErr  error
}

func newCache[V any](opts Options[V]) (*cache[V], error) {
	if opts.Store == nil {
		return nil, &ConfigError{Field: "store", Reason: "store is required"}
	}

	cc := &cache[V]{
		store: opts.Store,
		now:   time.Now,
	}

	if opts.Codec != nil {
		cc.codec = opts.Codec
	} else {
		cc.codec = c.Msgpack[V]{}
	}
	if opts.Logger != nil {
		cc.log = opts.Logger
	} else {
		cc.log = NopLogger{}
	}

	switch {
	case opts.CleanChance < 0:
		cc.cleanChance = 0
	case opts.CleanChance == 0:
		cc.cleanChance = defaultCleanChance
	default:
		cc.cleanChance = opts.CleanChance
	}
	seed := coalesce[int64](opts.CleanSeed, time.Now().UnixNano())
	cc.rng = rand.New(rand.NewSource(seed))

	return cc, nil
}

func validateKey(key string) error {
	if key == "" {
		return ErrKeyEmpty
	}
	if len(key) > maxKeyLen {
		return fmt.Errorf("%w: %d bytes", ErrKeyTooLong, len(key))
	}
	return nil
}

// expiresAt turns a relative TTL into the absolute expiration stored with
// the entry. Zero TTL => zero time => never expires.
func (cc *cache[V]) expiresAt(ttl time.Duration) time.Time {
	if ttl == 0 {
		return time.Time{}
	}
	return cc.now().Add(ttl)
}

func (cc *cache[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	if err := validateKey(key); err != nil {
		return zero, false, err
	}

	e, ok, err := cc.store.Get(ctx, key)
	if err != nil {
		return zero, false, &BackendError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return zero, false, nil
	}
	if e.Expired(cc.now()) {
		// Opportunistic purge: the read found a dead entry, drop it so it
		// stops occupying the backend. Best-effort only.
		if _, derr := cc.store.Delete(ctx, key); derr != nil {
			cc.log.Debug("expired entry purge failed", Fields{"key": key, "err": derr})
		}
		return zero, false, nil
	}

	v, err := cc.codec.Decode(e.Value)
	if err != nil {
		// Undecodable payload; self-heal and report a miss.
		_, _ = cc.store.Delete(ctx, key)
		cc.log.Warn("dropped undecodable entry", Fields{"key": key, "err": err})
		return zero, false, nil
	}
	return v, true, nil
}

func (cc *cache[V]) Set(ctx context.Context, key string, value V, ttl time.Duration) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if ttl < 0 {
		return ErrNegativeTTL
	}
	payload, err := cc.codec.Encode(value)
	if err != nil {
		return fmt.Errorf("stash: encode %q: %w", key, err)
	}
	e := st.Entry{Value: payload, ExpiresAt: cc.expiresAt(ttl)}
	if err := cc.store.Set(ctx, key, e); err != nil {
		return &BackendError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (cc *cache[V]) Add(ctx context.Context, key string, value V, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	if ttl < 0 {
		return false, ErrNegativeTTL
	}
	payload, err := cc.codec.Encode(value)
	if err != nil {
		return false, fmt.Errorf("stash: encode %q: %w", key, err)
	}
	e := st.Entry{Value: payload, ExpiresAt: cc.expiresAt(ttl)}
	added, err := cc.store.Add(ctx, key, e)
	if err != nil {
		return false, &BackendError{Op: "add", Key: key, Err: err}
	}
	return added, nil
}

func (cc *cache[V]) Delete(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	found, err := cc.store.Delete(ctx, key)
	if err != nil {
		return false, &BackendError{Op: "delete", Key: key, Err: err}
	}
	return found, nil
}

func (cc *cache[V]) Clear(ctx context.Context) error {
	if err := cc.store.Clear(ctx); err != nil {
		return &BackendError{Op: "clear", Err: err}
	}
	return nil
}

// Clean scans the entry set and removes entries whose expiration has
// passed. Backends without a local enumerable entry set expire entries
// themselves; for those Clean returns (0, nil).
func (cc *cache[V]) Clean(ctx context.Context) (int, error) {
	en, ok := cc.store.(st.Enumerable)
	if !ok {
		return 0, nil
	}
	states, err := en.Entries(ctx)
	if err != nil {
		return 0, &BackendError{Op: "clean", Err: err}
	}

	now := cc.now()
	removed := 0
	for _, ks := range states {
		if ks.ExpiresAt.IsZero() || !now.After(ks.ExpiresAt) {
			continue
		}
		ok, err := cc.store.Delete(ctx, ks.Key)
		if err != nil {
			return removed, &BackendError{Op: "clean", Key: ks.Key, Err: err}
		}
		if ok {
			removed++
		}
	}
	if removed > 0 {
		cc.log.Debug("purged expired entries", Fields{"removed": removed})
	}
	return removed, nil
}

func (cc *cache[V]) Flush(ctx context.Context) error {
	fl, ok := cc.store.(st.Flusher)
	if !ok {
		return nil
	}
	if err := fl.Flush(ctx); err != nil {
		return &BackendError{Op: "flush", Err: err}
	}
	return nil
}

// Close makes the shutdown clean roll, then closes the store. Buffering
// stores persist their dirty state inside Close; callers wanting an earlier
// durability point use Flush.
func (cc *cache[V]) Close(ctx context.Context) error {
	cc.closeOnce.Do(func() {
		if cc.cleanChance > 0 && cc.rng.Float64() < cc.cleanChance {
			n, err := cc.Clean(ctx)
			if err != nil {
				cc.log.Warn("shutdown clean failed", Fields{"err": err})
			} else if n > 0 {
				cc.log.Info("shutdown clean removed expired entries", Fields{"removed": n})
			}
		}
		if err := cc.store.Close(ctx); err != nil {
			cc.closeErr = &BackendError{Op: "close", Err: err}
		}
	})
	return cc.closeErr
}
