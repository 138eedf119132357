package codec

import (
	"reflect"
	"testing"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Get("binary"); !ok {
		t.Fatal("expected binary codec registered")
	}
	if _, ok := r.Get("nope"); ok {
		t.Fatal("expected unregistered codec to be absent")
	}

	if c := r.Resolve("nope"); c == nil {
		t.Fatal("Resolve should fall back to the binary codec, not nil")
	}
}

func TestBinaryCodecRoundTrip(t *testing.T) {
	c := binaryCodec{}
	b, err := c.Encode([]byte("hello"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := c.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(v, []byte("hello")) {
		t.Fatalf("expected hello, got %v", v)
	}
	if _, err := c.Encode("not bytes"); err == nil {
		t.Fatal("expected error encoding a non-[]byte value")
	}
}

func TestUTF8CodecRoundTrip(t *testing.T) {
	c := utf8Codec{}
	b, err := c.Encode("hello")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := c.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v != "hello" {
		t.Fatalf("expected hello, got %v", v)
	}
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	b, err := c.Encode(map[string]interface{}{"a": float64(1)})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	v, err := c.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	m, ok := v.(map[string]interface{})
	if !ok || m["a"] != float64(1) {
		t.Fatalf("expected {a:1}, got %v", v)
	}
}

func TestMarshalPreservingBytesRoundTrip(t *testing.T) {
	original := map[string]interface{}{
		"key":    []byte{0x01, 0x02, 0xff},
		"nested": map[string]interface{}{"inner": []byte("secret")},
		"list":   []interface{}{[]byte{0x00}, "plain string"},
		"plain":  "unaffected",
	}

	data, err := MarshalPreservingBytes(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var out interface{}
	if err := UnmarshalPreservingBytes(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	m, ok := out.(map[string]interface{})
	if !ok {
		t.Fatalf("expected map, got %T", out)
	}
	if !reflect.DeepEqual(m["key"], []byte{0x01, 0x02, 0xff}) {
		t.Fatalf("key mismatch: %v", m["key"])
	}
	nested, ok := m["nested"].(map[string]interface{})
	if !ok || !reflect.DeepEqual(nested["inner"], []byte("secret")) {
		t.Fatalf("nested mismatch: %v", m["nested"])
	}
	list, ok := m["list"].([]interface{})
	if !ok || !reflect.DeepEqual(list[0], []byte{0x00}) || list[1] != "plain string" {
		t.Fatalf("list mismatch: %v", m["list"])
	}
	if m["plain"] != "unaffected" {
		t.Fatalf("plain mismatch: %v", m["plain"])
	}
}

func TestUntagBytesLeavesOrdinaryStringsAlone(t *testing.T) {
	data, err := MarshalPreservingBytes(map[string]interface{}{"note": "$bin looking but not tagged"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out interface{}
	if err := UnmarshalPreservingBytes(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m := out.(map[string]interface{})
	if m["note"] != "$bin looking but not tagged" {
		t.Fatalf("expected untouched string, got %v", m["note"])
	}
}
