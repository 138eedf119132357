// Package memstore is the in-memory blockstore.Factory, used by tests and
// by any caller that wants an ephemeral store with no on-disk footprint.
package memstore

import (
	"io"
	"sync"

	"github.com/dxos-deprecated/feed-store/internal/blockstore"
)

// New returns a Factory backed by a plain map, safe for concurrent use.
func New() blockstore.Factory {
	return &factory{handles: make(map[string]*buffer)}
}

type factory struct {
	mu      sync.Mutex
	handles map[string]*buffer
}

var (
	_ blockstore.Factory = (*factory)(nil)
	_ blockstore.Handle  = (*handle)(nil)
)

func (f *factory) Open(name string) (blockstore.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.handles[name]
	if !ok {
		b = &buffer{}
		f.handles[name] = b
	}
	return &handle{buf: b}, nil
}

func (f *factory) Close() error { return nil }

// buffer is the shared backing store for a name; multiple handles opened
// for the same name observe each other's writes, matching what a real
// file-backed store would do.
type buffer struct {
	mu   sync.RWMutex
	data []byte
}

type handle struct {
	buf    *buffer
	closed bool
}

func (h *handle) ReadAt(p []byte, off int64) (int, error) {
	h.buf.mu.RLock()
	defer h.buf.mu.RUnlock()
	if off >= int64(len(h.buf.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.buf.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (h *handle) WriteAt(p []byte, off int64) (int, error) {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	end := off + int64(len(p))
	if end > int64(len(h.buf.data)) {
		grown := make([]byte, end)
		copy(grown, h.buf.data)
		h.buf.data = grown
	}
	copy(h.buf.data[off:end], p)
	return len(p), nil
}

func (h *handle) Stat() (int64, error) {
	h.buf.mu.RLock()
	defer h.buf.mu.RUnlock()
	return int64(len(h.buf.data)), nil
}

func (h *handle) Del() error {
	h.buf.mu.Lock()
	defer h.buf.mu.Unlock()
	h.buf.data = nil
	return nil
}

func (h *handle) Close() error {
	h.closed = true
	return nil
}
