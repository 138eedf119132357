// Package pebbletrie is a Pebble-backed triekv.Trie, sharing its physical
// Pebble database with internal/blockstore/pebblefs (see SharedStore) and
// grounded on the teacher's prefix-range iteration pattern from
// internal/eventlog/read.go.
package pebbletrie

import (
	"github.com/cockroachdb/pebble"

	"github.com/dxos-deprecated/feed-store/internal/blockstore/pebblefs"
	"github.com/dxos-deprecated/feed-store/internal/triekv"
)

// Factory opens pebbletrie instances, each rooted under its own key prefix
// within a single shared Pebble database so several named tries (e.g. the
// index and any caller-defined side tables) can coexist.
type Factory struct {
	db *pebblefs.SharedStore
}

// New returns a Factory backed by db. The Factory does not own db's
// lifecycle.
func New(db *pebblefs.SharedStore) *Factory { return &Factory{db: db} }

func (f *Factory) Open(name string) (triekv.Trie, error) {
	prefix := "trie/" + name + "/"
	return &trie{db: f.db, prefix: []byte(prefix)}, nil
}

type trie struct {
	db     *pebblefs.SharedStore
	prefix []byte
}

var _ triekv.Trie = (*trie)(nil)

func (t *trie) fullKey(key string) []byte {
	k := make([]byte, 0, len(t.prefix)+len(key))
	k = append(k, t.prefix...)
	k = append(k, key...)
	return k
}

func (t *trie) Put(key string, value []byte) error {
	return t.db.Set(t.fullKey(key), value)
}

func (t *trie) Get(key string) ([]byte, bool, error) {
	v, err := t.db.Get(t.fullKey(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}
	return v, true, nil
}

func (t *trie) Del(key string) error {
	return t.db.Delete(t.fullKey(key))
}

func (t *trie) List(prefix string) ([]triekv.Entry, error) {
	low := t.fullKey(prefix)
	high := prefixUpperBound(low)

	iter, err := t.db.NewIter(&pebble.IterOptions{LowerBound: low, UpperBound: high})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []triekv.Entry
	for iter.First(); iter.Valid(); iter.Next() {
		key := string(iter.Key()[len(t.prefix):])
		val := append([]byte(nil), iter.Value()...)
		out = append(out, triekv.Entry{Key: key, Value: val})
	}
	return out, iter.Error()
}

func (t *trie) Close() error { return nil }

// prefixUpperBound returns the smallest key that is strictly greater than
// every key sharing prefix, so an iterator bounded by it visits exactly
// the prefix's key range.
func prefixUpperBound(prefix []byte) []byte {
	up := append([]byte(nil), prefix...)
	for i := len(up) - 1; i >= 0; i-- {
		if up[i] < 0xff {
			up[i]++
			return up[:i+1]
		}
	}
	return nil // prefix is all 0xff bytes: no finite upper bound needed
}
