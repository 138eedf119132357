// Package codec implements the codec registry of spec §6: a name-to-codec
// map used to interpret the opaque bytes appended to a feed. It ships the
// three built-in codecs the spec calls out ("binary", "utf-8", "json") and
// lets callers Register additional ones.
package codec

import "fmt"

// Codec encodes/decodes a value to/from the bytes stored in a feed block.
type Codec interface {
	Encode(v interface{}) ([]byte, error)
	Decode(b []byte) (interface{}, error)
}

type binaryCodec struct{}

func (binaryCodec) Encode(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case nil:
		return nil, nil
	default:
		return nil, fmt.Errorf("codec: binary encode expects []byte, got %T", v)
	}
}

func (binaryCodec) Decode(b []byte) (interface{}, error) { return b, nil }

type utf8Codec struct{}

func (utf8Codec) Encode(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case string:
		return []byte(t), nil
	case []byte:
		return t, nil
	default:
		return nil, fmt.Errorf("codec: utf-8 encode expects string, got %T", v)
	}
}

func (utf8Codec) Decode(b []byte) (interface{}, error) { return string(b), nil }

// Registry holds the codecs known to a store, keyed by name.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry constructs a Registry pre-populated with "binary", "utf-8",
// and "json".
func NewRegistry() *Registry {
	r := &Registry{codecs: make(map[string]Codec, 4)}
	r.codecs["binary"] = binaryCodec{}
	r.codecs["utf-8"] = utf8Codec{}
	r.codecs["json"] = jsonCodec{}
	return r
}

// Register adds or replaces a named codec.
func (r *Registry) Register(name string, c Codec) { r.codecs[name] = c }

// Get returns the codec for name, or (nil, false) if unregistered.
func (r *Registry) Get(name string) (Codec, bool) {
	c, ok := r.codecs[name]
	return c, ok
}

// Resolve returns the codec for name, falling back to the binary codec (a
// pass-through) when name is empty or unregistered, matching the spec's
// "may resolve to a registered codec" language for ValueEncoding — an
// unresolved name is not an error at this layer, it just yields raw bytes.
func (r *Registry) Resolve(name string) Codec {
	if c, ok := r.codecs[name]; ok {
		return c
	}
	return binaryCodec{}
}
