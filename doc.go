// Package stash implements a backend-polymorphic key/value cache with a
// single operation contract: Get, Set, Add, Delete, Clear, Clean. Callers
// pick one storage medium at construction and never see it again; every
// value crossing the boundary goes through a pluggable codec.
//
// Components:
//   - store.Store: byte store with absolute expirations. Variants: memory
//     (single-file backed map, lazy flush), files (one file per key),
//     local (in-process TTL cache), memcached, redis, sql.
//   - codec.Codec[V]: (de)serializes V <-> []byte. Msgpack by default;
//     JSON, CBOR, Protobuf, and lossy string coercion are available.
//   - Cache[V]: the facade. Validates keys and TTLs, computes absolute
//     expirations, treats expired entries as absent everywhere, and wraps
//     backend failures in BackendError.
//
// Expiration model:
//
//	ttl == 0  => never expires
//	ttl > 0   => logically absent once now > set-time + ttl
//
// Expired entries never come back from Get, never block Add, and are
// removed by Clean on backends that can enumerate their entries. Backends
// with native TTLs (local, memcached, redis) expire entries themselves.
//
// The memory backend defers durability: mutations mark a dirty flag and the
// snapshot is written once, at Close (or on an explicit Flush). Close also
// rolls a seedable ~1% chance to sweep expired entries first, so long-lived
// never-read garbage eventually leaves the snapshot without a scheduled job.
package stash
