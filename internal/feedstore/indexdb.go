package feedstore

import (
	"bytes"
	"encoding/json"

	"github.com/dxos-deprecated/feed-store/internal/codec"
	"github.com/dxos-deprecated/feed-store/internal/ferrors"
)

// IndexDB is the thin adapter over the injected Trie described in spec
// §4.3: it namespaces every key under a configured prefix and serializes
// records with the binary-preserving JSON codec so nested byte fields
// (SecretKey, byte-valued Metadata) round-trip.
type IndexDB struct {
	trie      Trie
	namespace string
}

// NewIndexDB wraps trie, namespacing all keys under namespace (e.g.
// "@feedstore/").
func NewIndexDB(trie Trie, namespace string) *IndexDB {
	return &IndexDB{trie: trie, namespace: namespace}
}

func (idx *IndexDB) key(hexKey string) string { return idx.namespace + hexKey }

// List decodes every record under the index namespace.
func (idx *IndexDB) List() ([]Record, error) {
	entries, err := idx.trie.List(idx.namespace)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.EngineError, "indexdb.list", err)
	}
	out := make([]Record, 0, len(entries))
	for _, e := range entries {
		rec, err := decodeRecord(e.Value)
		if err != nil {
			return nil, ferrors.Wrap(ferrors.EngineError, "indexdb.list", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns the record under hexKey, or (Record{}, false) if absent.
func (idx *IndexDB) Get(hexKey string) (Record, bool, error) {
	raw, ok, err := idx.trie.Get(idx.key(hexKey))
	if err != nil {
		return Record{}, false, ferrors.Wrap(ferrors.EngineError, "indexdb.get", err)
	}
	if !ok {
		return Record{}, false, nil
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return Record{}, false, ferrors.Wrap(ferrors.EngineError, "indexdb.get", err)
	}
	return rec, true, nil
}

// Put serializes rec and writes it under hexKey. The write is elided when
// the new serialization is byte-identical to what is already stored, so a
// descriptor's record is not rewritten on every open (spec §4.3).
func (idx *IndexDB) Put(hexKey string, rec Record) error {
	encoded, err := encodeRecord(rec)
	if err != nil {
		return ferrors.Wrap(ferrors.EngineError, "indexdb.put", err)
	}
	existing, ok, err := idx.trie.Get(idx.key(hexKey))
	if err != nil {
		return ferrors.Wrap(ferrors.EngineError, "indexdb.put", err)
	}
	if ok && bytes.Equal(existing, encoded) {
		return nil
	}
	if err := idx.trie.Put(idx.key(hexKey), encoded); err != nil {
		return ferrors.Wrap(ferrors.EngineError, "indexdb.put", err)
	}
	return nil
}

// Delete removes the record under hexKey.
func (idx *IndexDB) Delete(hexKey string) error {
	if err := idx.trie.Del(idx.key(hexKey)); err != nil {
		return ferrors.Wrap(ferrors.EngineError, "indexdb.delete", err)
	}
	return nil
}

// Close releases the underlying trie.
func (idx *IndexDB) Close() error {
	if err := idx.trie.Close(); err != nil {
		return ferrors.Wrap(ferrors.EngineError, "indexdb.close", err)
	}
	return nil
}

// wireRecord is Record's JSON shape with byte slices tagged for
// binary-preserving round-trips (spec §9's "Binary-in-JSON metadata").
type wireRecord struct {
	Path          string      `json:"path"`
	Key           interface{} `json:"key"`
	SecretKey     interface{} `json:"secretKey,omitempty"`
	ValueEncoding string      `json:"valueEncoding"`
	Metadata      interface{} `json:"metadata,omitempty"`
}

func encodeRecord(rec Record) ([]byte, error) {
	w := wireRecord{
		Path:          rec.Path,
		ValueEncoding: rec.ValueEncoding,
	}
	if rec.Key != nil {
		w.Key = rec.Key
	}
	if rec.SecretKey != nil {
		w.SecretKey = rec.SecretKey
	}
	if rec.Metadata != nil {
		w.Metadata = rec.Metadata
	}
	// Round-trip through an interface{} tree so codec.tagBytes sees the
	// same shape json.Unmarshal would later hand back on decode.
	raw, err := json.Marshal(w)
	if err != nil {
		return nil, err
	}
	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil, err
	}
	return codec.MarshalPreservingBytes(applyByteFields(generic, rec))
}

// applyByteFields substitutes the real key/secretKey/metadata values back
// into the generic JSON tree so MarshalPreservingBytes can tag their
// []byte values; a
// plain json.Marshal of a []byte already turned them into base64 strings
// by the time we reach here otherwise.
func applyByteFields(generic interface{}, rec Record) interface{} {
	m, ok := generic.(map[string]interface{})
	if !ok {
		return generic
	}
	if rec.Key != nil {
		m["key"] = rec.Key
	}
	if rec.SecretKey != nil {
		m["secretKey"] = rec.SecretKey
	}
	if rec.Metadata != nil {
		m["metadata"] = rec.Metadata
	}
	return m
}

func decodeRecord(raw []byte) (Record, error) {
	var generic interface{}
	if err := codec.UnmarshalPreservingBytes(raw, &generic); err != nil {
		return Record{}, err
	}
	m, ok := generic.(map[string]interface{})
	if !ok {
		return Record{}, ferrors.New(ferrors.EngineError, "indexdb.decode", "malformed record")
	}
	rec := Record{}
	if v, ok := m["path"].(string); ok {
		rec.Path = v
	}
	if v, ok := m["valueEncoding"].(string); ok {
		rec.ValueEncoding = v
	}
	if v, ok := m["key"].([]byte); ok {
		rec.Key = v
	}
	if v, ok := m["secretKey"].([]byte); ok {
		rec.SecretKey = v
	}
	rec.Metadata = m["metadata"]
	return rec, nil
}
