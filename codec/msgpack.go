package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack serializes values using vmihailenco/msgpack/v5. The zero value is
// ready to use, and it is the cache's default codec: compact, fast, and it
// round-trips nested structs, maps and slices.
//
// Use `msgpack:"fieldName"` tags for explicit field naming; tag conventions
// differ from encoding/json.
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
