package codec

import "encoding/json"

// JSON serializes values with encoding/json. Slower and larger than
// Msgpack, but the stored bytes stay human-readable, which helps when the
// backing medium is inspected directly (files, sql rows).
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
