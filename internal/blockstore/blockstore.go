// Package blockstore defines the storage-factory contract of spec §6: named
// random-access byte containers that a log engine addresses by block index.
// The core never talks to a concrete backend directly; it is handed a
// Factory and roots every feed's blocks under "<hex(key)>/<name>" (spec
// §4.2's "Storage rooting").
package blockstore

import "io"

// Handle is a single named random-access byte container. Block N occupies
// bytes [N*blockSize, (N+1)*blockSize) for callers that choose a fixed
// block size, but blockstore itself is agnostic: it only knows offsets and
// lengths, matching the "random-access-handle" language of spec §6.
type Handle interface {
	io.Closer

	// ReadAt reads len(p) bytes starting at off. It returns io.EOF (wrapped
	// or bare, per io.ReaderAt's contract) when off is at or past Stat's
	// current length.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes p at off, growing the container if off+len(p) exceeds
	// its current length. Gaps left by a write past the current end are
	// zero-filled, matching typical random-access-storage semantics.
	WriteAt(p []byte, off int64) (int, error)

	// Stat reports the handle's current length in bytes.
	Stat() (int64, error)

	// Del truncates the container to zero length. Handles that don't
	// support truncation may implement this as a logical delete visible to
	// the next Open of the same name.
	Del() error
}

// Factory opens named handles rooted at some backend-specific base. A
// Factory is safe for concurrent use; a returned Handle is owned by its
// caller until Closed.
type Factory interface {
	// Open returns the handle for name, creating it on first use.
	Open(name string) (Handle, error)

	// Close releases any resources held by the factory itself (not by
	// handles already returned, which the caller must Close individually).
	Close() error
}

// Rooted returns a Factory that prefixes every name passed to Open with
// prefix, letting multiple logical roots (e.g. one per feed key) share a
// single underlying Factory. This is how FeedDescriptor.Open implements
// spec §4.2's storage rooting without every backend needing its own
// notion of namespacing.
func Rooted(base Factory, prefix string) Factory {
	return &rooted{base: base, prefix: prefix}
}

type rooted struct {
	base   Factory
	prefix string
}

func (r *rooted) Open(name string) (Handle, error) { return r.base.Open(r.prefix + "/" + name) }

// Close is a no-op: the underlying base Factory is shared across roots and
// is closed by whoever owns it, not by an individual rooted view.
func (r *rooted) Close() error { return nil }
