package codec

// Bytes is the identity codec for []byte values. The cache's framing and
// expiration handling still apply; the payload passes through untouched.
type Bytes struct{}

func (Bytes) Encode(b []byte) ([]byte, error) { return b, nil }
func (Bytes) Decode(b []byte) ([]byte, error) { return b, nil }

// String is the string-coercion codec: the value's text is stored on write
// and returned verbatim on read. It does not round-trip structured types,
// so pair it with Cache[string] where callers coerce their values up
// front. Assumes UTF-8, performs no validation.
type String struct{}

func (String) Encode(s string) ([]byte, error) { return []byte(s), nil }
func (String) Decode(b []byte) (string, error) { return string(b), nil }
