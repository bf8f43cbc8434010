// Package codec defines the serialization strategy applied around every
// store operation. The cache never hands a backend an unserialized value
// and never hands a caller raw bytes: Encode runs on every write, Decode on
// every read, symmetrically.
//
// Two families exist: structural codecs (Msgpack, JSON, CBOR, Protobuf)
// that round-trip nested values, and coercion codecs (String, Bytes) that
// store a textual/raw representation verbatim and do not preserve types.
package codec

// Codec encodes/decodes values V to []byte for storage.
// Decode(Encode(v)) must be defined for every v the cache accepts.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
