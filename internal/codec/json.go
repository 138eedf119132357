package codec

import "encoding/json"

type jsonCodec struct{}

func (jsonCodec) Encode(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (jsonCodec) Decode(b []byte) (interface{}, error) {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// binTag is the reserved key the binary-preserving JSON variant uses to tag
// a []byte value that would otherwise be silently stringified (or dropped)
// by encoding/json, per spec §9's "Binary-in-JSON metadata" note. It mirrors
// the length-prefixed, byte-string-first mindset of the teacher's own
// eventlog record framing, translated to a JSON-compatible wire form.
const binTag = "$bin"

// MarshalPreservingBytes marshals v to JSON, replacing every []byte value
// reachable through map[string]interface{} and []interface{} values (at any
// depth) with a tagged object so it can be told apart from an ordinary
// base64-looking string on the way back in. Byte slices are recognized
// structurally before marshaling by walking v; values of any other type
// (structs, typed maps and slices) are handed to json.Marshal as they are,
// so a []byte inside them is written as a plain base64 string.
func MarshalPreservingBytes(v interface{}) ([]byte, error) {
	return json.Marshal(tagBytes(v))
}

// UnmarshalPreservingBytes is the inverse of MarshalPreservingBytes: it
// decodes into a generic interface{} tree and restores tagged byte strings
// to []byte.
func UnmarshalPreservingBytes(data []byte, out *interface{}) error {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*out = untagBytes(raw)
	return nil
}

func tagBytes(v interface{}) interface{} {
	switch t := v.(type) {
	case []byte:
		return map[string]interface{}{binTag: encodeBase64(t)}
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = tagBytes(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = tagBytes(vv)
		}
		return out
	default:
		return v
	}
}

func untagBytes(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		if len(t) == 1 {
			if b64, ok := t[binTag]; ok {
				if s, ok := b64.(string); ok {
					if raw, err := decodeBase64(s); err == nil {
						return raw
					}
				}
			}
		}
		out := make(map[string]interface{}, len(t))
		for k, vv := range t {
			out[k] = untagBytes(vv)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, vv := range t {
			out[i] = untagBytes(vv)
		}
		return out
	default:
		return v
	}
}
