package store

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis delegates to a caller-supplied go-redis client. Redis expires keys
// natively, so expired entries are never surfaced and cleaning is a no-op.
// SET NX makes Add a single atomic conditional write; there is no
// check-then-act window here.
type Redis struct {
	rdb     redis.UniversalClient
	prefix  string
	timeout time.Duration
}

var _ Store = (*Redis)(nil)

// NewRedis validates the client and verifies the server is reachable.
// The caller owns the client lifecycle; Close does not close it.
func NewRedis(cfg Config) (*Redis, error) {
	if cfg.Redis == nil {
		return nil, &ConfigError{Field: "redis", Reason: "redis backend requires a client"}
	}
	r := &Redis{rdb: cfg.Redis, timeout: cfg.Timeout}
	if cfg.Namespace != "" {
		r.prefix = cfg.Namespace + ":"
	}

	ctx, cancel := r.opCtx(context.Background())
	defer cancel()
	if err := r.rdb.Ping(ctx).Err(); err != nil {
		return nil, &EnvError{Target: "redis", Reason: "server unreachable", Err: err}
	}
	return r, nil
}

func (r *Redis) opCtx(parent context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return parent, func() {}
	}
	return context.WithTimeout(parent, r.timeout)
}

// redisTTL converts the absolute expiration into the relative TTL redis
// expects. Zero means no expiration.
func redisTTL(e Entry) time.Duration {
	if e.ExpiresAt.IsZero() {
		return 0
	}
	ttl := time.Until(e.ExpiresAt)
	if ttl < time.Millisecond {
		ttl = time.Millisecond // PX granularity floor
	}
	return ttl
}

func (r *Redis) Get(ctx context.Context, key string) (Entry, bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	raw, err := r.rdb.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return Entry{Value: raw}, true, nil
}

func (r *Redis) Set(ctx context.Context, key string, e Entry) error {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	return r.rdb.Set(ctx, r.prefix+key, e.Value, redisTTL(e)).Err()
}

func (r *Redis) Add(ctx context.Context, key string, e Entry) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	return r.rdb.SetNX(ctx, r.prefix+key, e.Value, redisTTL(e)).Result()
}

func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := r.opCtx(ctx)
	defer cancel()
	n, err := r.rdb.Del(ctx, r.prefix+key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Clear deletes every key under the namespace prefix via SCAN. With an
// empty namespace the pattern matches the whole logical database.
func (r *Redis) Clear(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, r.prefix+"*", 256).Iterator()
	batch := make([]string, 0, 256)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		err := r.rdb.Del(ctx, batch...).Err()
		batch = batch[:0]
		return err
	}
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == cap(batch) {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	return flush()
}

func (r *Redis) Close(_ context.Context) error { return nil }
