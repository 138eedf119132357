package blockstore_test

import (
	"io"
	"testing"

	"github.com/dxos-deprecated/feed-store/internal/blockstore"
	"github.com/dxos-deprecated/feed-store/internal/blockstore/memstore"
	"github.com/dxos-deprecated/feed-store/internal/blockstore/pebblefs"
)

// runConformance exercises the same sequence of operations against any
// blockstore.Factory, so both backends are held to one behavioral contract.
func runConformance(t *testing.T, factory blockstore.Factory) {
	t.Helper()

	h, err := factory.Open("data")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer h.Close()

	if n, err := h.Stat(); err != nil || n != 0 {
		t.Fatalf("expected empty container, got n=%d err=%v", n, err)
	}

	if _, err := h.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 5)
	if _, err := h.ReadAt(buf, 0); err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf) != "hello" {
		t.Fatalf("expected hello, got %q", buf)
	}

	// Writing past the current end zero-fills the gap.
	if _, err := h.WriteAt([]byte("!"), 10); err != nil {
		t.Fatalf("write past end: %v", err)
	}
	gap := make([]byte, 11)
	if _, err := h.ReadAt(gap, 0); err != nil {
		t.Fatalf("read after gap write: %v", err)
	}
	if string(gap[:5]) != "hello" || gap[10] != '!' {
		t.Fatalf("unexpected content after gap write: %q", gap)
	}
	for i := 5; i < 10; i++ {
		if gap[i] != 0 {
			t.Fatalf("expected zero-filled gap byte at %d, got %d", i, gap[i])
		}
	}

	n, err := h.Stat()
	if err != nil || n != 11 {
		t.Fatalf("expected length 11, got n=%d err=%v", n, err)
	}

	// Reading past the end reports io.EOF.
	if _, err := h.ReadAt(make([]byte, 1), 100); err != io.EOF {
		t.Fatalf("expected io.EOF reading past end, got %v", err)
	}

	if err := h.Del(); err != nil {
		t.Fatalf("del: %v", err)
	}
	if n, err := h.Stat(); err != nil || n != 0 {
		t.Fatalf("expected zero length after del, got n=%d err=%v", n, err)
	}
}

func TestMemstoreConformance(t *testing.T) {
	runConformance(t, memstore.New())
}

func TestMemstoreSharesHandlesByName(t *testing.T) {
	f := memstore.New()
	a, err := f.Open("shared")
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	b, err := f.Open("shared")
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	if _, err := a.WriteAt([]byte("x"), 0); err != nil {
		t.Fatalf("write: %v", err)
	}
	buf := make([]byte, 1)
	if _, err := b.ReadAt(buf, 0); err != nil {
		t.Fatalf("read via second handle: %v", err)
	}
	if buf[0] != 'x' {
		t.Fatalf("expected shared write to be visible, got %q", buf)
	}
}

func TestPebblefsConformance(t *testing.T) {
	dir := t.TempDir()
	db, err := pebblefs.OpenShared(pebblefs.Options{DataDir: dir, Fsync: pebblefs.FsyncModeNever})
	if err != nil {
		t.Fatalf("open pebble: %v", err)
	}
	defer db.Close()
	runConformance(t, pebblefs.New(db))
}
