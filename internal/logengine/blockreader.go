package logengine

import (
	"context"
	"io"

	"github.com/dxos-deprecated/feed-store/internal/feedstore"
)

// blockReader is the default feedstore.BlockReader, grounded on
// internal/eventlog's blocking.go WaitForAppend: it polls Length and blocks
// on the handle's notify channel between polls instead of busy-waiting.
type blockReader struct {
	h    *Handle
	next uint64
	live bool

	end     uint64
	bounded bool

	closed     chan struct{}
	closedOnce boolOnce
}

// boolOnce is a tiny sync.Once substitute that also reports whether it has
// already fired, so Close is idempotent without pulling in sync.Once just
// to guard a single close(chan).
type boolOnce struct{ done bool }

func (b *boolOnce) do(fn func()) {
	if b.done {
		return
	}
	b.done = true
	fn()
}

var _ feedstore.BlockReader = (*blockReader)(nil)

func (r *blockReader) Next(ctx context.Context) (feedstore.Block, error) {
	for {
		if r.bounded && r.next >= r.end {
			return feedstore.Block{}, io.EOF
		}
		if r.next < r.h.Length() {
			data, err := r.h.Get(ctx, r.next)
			if err != nil {
				return feedstore.Block{}, err
			}
			b := feedstore.Block{Seq: r.next, Data: data}
			r.next++
			return b, nil
		}
		if r.h.Closed() {
			return feedstore.Block{}, io.EOF
		}

		wait := r.h.waitCh()
		select {
		case <-wait:
		case <-r.closed:
			return feedstore.Block{}, io.EOF
		case <-ctx.Done():
			return feedstore.Block{}, ctx.Err()
		}
	}
}

func (r *blockReader) Close() error {
	r.closedOnce.do(func() { close(r.closed) })
	return nil
}
