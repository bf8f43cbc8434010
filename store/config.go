package store

import (
	"database/sql"
	"time"

	"github.com/redis/go-redis/v9"
)

// Kind selects a backend variant at construction time. The facade resolves
// the kind exactly once; after Open there is no re-dispatch by name.
type Kind string

const (
	// KindMemory is an in-process map loaded from, and flushed to, a single
	// file at Path. Durability is deferred until Flush or Close.
	KindMemory Kind = "memory"

	// KindFiles stores one file per key in the directory at Path.
	KindFiles Kind = "files"

	// KindLocal is a process-local TTL cache with no persistence.
	KindLocal Kind = "local"

	// KindMemcached delegates to a memcached server pool.
	KindMemcached Kind = "memcached"

	// KindRedis delegates to a Redis client.
	KindRedis Kind = "redis"

	// KindSQL stores rows in a caller-supplied relational table.
	KindSQL Kind = "sql"
)

// Config is the backend-specific connection descriptor. Only the fields
// relevant to the chosen Kind are consulted.
type Config struct {
	Kind Kind

	// Path is the backing file (memory) or directory (files).
	Path string

	// Namespace prefixes keys on backends that share a server-wide keyspace
	// (memcached, redis). Empty disables prefixing.
	Namespace string

	// Host/Port name a single memcached server when Addrs is empty.
	Host string
	Port int

	// Addrs lists memcached servers ("host:port"). Takes precedence over
	// Host/Port.
	Addrs []string

	// Timeout bounds each network round-trip for memcached and redis.
	// Zero keeps the client default.
	Timeout time.Duration

	// Redis is the prebuilt client for KindRedis. The caller owns its
	// lifecycle.
	Redis redis.UniversalClient

	// DB is the open handle for KindSQL. The caller owns its lifecycle and
	// must have created the table beforehand.
	DB *sql.DB

	// Table and column names for KindSQL. Defaults: cache / key / value / ttl.
	// The ttl column holds the absolute expiration as unix seconds, 0 = never.
	Table       string
	KeyColumn   string
	ValueColumn string
	TTLColumn   string
}

// Open validates the descriptor for the chosen kind and constructs the
// backend. Unknown kinds fail with *ConfigError; descriptor validation
// failures (bad path, unreachable service) fail with *EnvError.
func Open(cfg Config) (Store, error) {
	switch cfg.Kind {
	case KindMemory:
		return NewMemory(cfg.Path)
	case KindFiles:
		return NewFiles(cfg.Path)
	case KindLocal:
		return NewLocal(), nil
	case KindMemcached:
		return NewMemcached(cfg)
	case KindRedis:
		return NewRedis(cfg)
	case KindSQL:
		return NewSQL(cfg)
	default:
		return nil, &ConfigError{Field: "kind", Reason: "unknown backend kind " + string(cfg.Kind)}
	}
}
