package codec

import "fmt"

// Limit wraps another codec to cap the payload size accepted by Decode.
// Encode is forwarded unchanged. MaxDecode <= 0 disables the cap.
//
// Useful when the backing store is shared (memcached, redis, sql) and a
// foreign writer could plant an oversized payload under this cache's keys.
type Limit[V any] struct {
	// Inner is the wrapped codec. Must be set.
	Inner Codec[V]
	// MaxDecode is the largest payload, in bytes, Decode will accept.
	MaxDecode int
}

func (c Limit[V]) Encode(v V) ([]byte, error) { return c.Inner.Encode(v) }

func (c Limit[V]) Decode(b []byte) (V, error) {
	if c.MaxDecode > 0 && len(b) > c.MaxDecode {
		var zero V
		return zero, fmt.Errorf("payload too large: %d > %d", len(b), c.MaxDecode)
	}
	return c.Inner.Decode(b)
}
