// Package pebblefs is a Pebble-backed blockstore.Factory: each named
// container is a single Pebble value, read-modify-written on every WriteAt.
// Its low-level Pebble wrapper (fsync policy, batch commits, prefix
// iteration) lives alongside it in sharedstore.go and is also handed to
// pebbletrie so both live in the same physical Pebble database.
package pebblefs

import (
	"io"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/dxos-deprecated/feed-store/internal/blockstore"
)

// New returns a Factory storing every container as a value under its name
// (prefixed) in the given shared Pebble store. The Factory does not own
// db's lifecycle; callers close it independently.
func New(db *SharedStore) *Factory {
	return &Factory{db: db}
}

// Factory is the pebblefs blockstore.Factory.
type Factory struct {
	db *SharedStore
}

var _ blockstore.Factory = (*Factory)(nil)
var _ blockstore.Handle = (*Handle)(nil)

var keyPrefix = []byte("blockstore/")

func containerKey(name string) []byte {
	k := make([]byte, 0, len(keyPrefix)+len(name))
	k = append(k, keyPrefix...)
	k = append(k, name...)
	return k
}

// Open returns the handle for name. Pebble has no notion of an empty
// existing key, so a container that has never been written reads as
// zero-length until its first WriteAt.
func (f *Factory) Open(name string) (blockstore.Handle, error) {
	return &Handle{db: f.db, key: containerKey(name)}, nil
}

func (f *Factory) Close() error { return nil }

// Handle is a single named container backed by one Pebble key. Every
// WriteAt reads the current value, mutates it in memory, and writes it
// back, which is adequate for feed metadata and small block ranges; the
// cost of a write grows with the container's size (see DESIGN.md's
// blockstore tradeoff).
type Handle struct {
	mu  sync.Mutex
	db  *SharedStore
	key []byte
}

func (h *Handle) ReadAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, err := h.db.Get(h.key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return 0, io.EOF
		}
		return 0, err
	}
	if off >= int64(len(data)) {
		return 0, io.EOF
	}
	n := copy(p, data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (h *Handle) WriteAt(p []byte, off int64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, err := h.db.Get(h.key)
	if err != nil && err != pebble.ErrNotFound {
		return 0, err
	}
	end := off + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}
	copy(data[off:end], p)
	if err := h.db.Set(h.key, data); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (h *Handle) Stat() (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	data, err := h.db.Get(h.key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return 0, nil
		}
		return 0, err
	}
	return int64(len(data)), nil
}

func (h *Handle) Del() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.db.Delete(h.key)
}

func (h *Handle) Close() error { return nil }
