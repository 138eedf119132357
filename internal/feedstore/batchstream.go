package feedstore

import (
	"context"
	"io"
	"time"
)

// BatchStreamOptions parameterizes NewBatchStream (spec §4.8).
type BatchStreamOptions struct {
	Start     uint64
	End       uint64 // 0 means unbounded
	Live      bool
	Snapshot  bool // not read: a non-live stream always stops at the head NewBatchStream records
	Tail      bool // start at current head
	BatchSize int
}

// Batch is one contiguous range of messages read from a single feed. The
// last element carries Sync == true exactly when this batch crossed the
// snapshot head recorded at stream creation (spec §4.8).
type Batch []Message

// BatchStream reads contiguous ranges of one log in batches. It is owned
// by exactly one reader at a time (spec §4.8).
type BatchStream struct {
	feed      LogHandle
	descKey   []byte
	descPath  string
	end       uint64
	bounded   bool
	live      bool
	batchSize int
	snapHead  uint64

	next uint64
	done bool
}

// NewBatchStream constructs a stream over feed starting at opts.Start (or
// the feed's current length if opts.Tail). The snapshot head recorded at
// construction is used both for the Sync watermark and, for any
// non-live stream, as the implicit End when opts.End is unset — a
// non-live stream by definition stops at "what's there now".
func NewBatchStream(feed LogHandle, descKey []byte, descPath string, opts BatchStreamOptions) *BatchStream {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	head := feed.Length()
	start := opts.Start
	if opts.Tail {
		start = head
	}

	bs := &BatchStream{
		feed:      feed,
		descKey:   descKey,
		descPath:  descPath,
		live:      opts.Live,
		batchSize: batchSize,
		snapHead:  head,
		next:      start,
	}
	switch {
	case opts.End != 0:
		bs.end = opts.End
		bs.bounded = true
	case !opts.Live:
		bs.end = head
		bs.bounded = true
	default:
		bs.bounded = false
	}
	return bs
}

// Next returns the next batch, blocking (subject to ctx) when the stream is
// unbounded or live and no data is yet available. It returns io.EOF once
// the stream is exhausted (bounded, non-live) or the feed closes.
func (bs *BatchStream) Next(ctx context.Context) (Batch, error) {
	if bs.done {
		return nil, io.EOF
	}

	limit := bs.nextLimit()
	for bs.next >= limit {
		if bs.bounded && bs.next >= bs.end {
			bs.done = true
			return nil, io.EOF
		}
		if bs.feed.Closed() {
			bs.done = true
			return nil, io.EOF
		}
		if err := waitForFeedGrowth(ctx, bs.feed, bs.next); err != nil {
			return nil, err
		}
		limit = bs.nextLimit()
	}

	blocks, err := bs.feed.GetBatch(ctx, bs.next, limit)
	if err != nil {
		return nil, err
	}

	batch := make(Batch, len(blocks))
	crossesSnapshot := false
	for i, b := range blocks {
		batch[i] = Message{Data: b.Data, Seq: b.Seq, Key: bs.descKey, Path: bs.descPath}
		if bs.snapHead > 0 && b.Seq == bs.snapHead-1 {
			crossesSnapshot = true
		}
	}
	if crossesSnapshot && len(batch) > 0 {
		batch[len(batch)-1].Sync = true
	}
	bs.next = limit
	return batch, nil
}

// nextLimit computes the end of the next batch given the feed's current
// length, clamped to bs.end when bounded.
func (bs *BatchStream) nextLimit() uint64 {
	limit := bs.next + uint64(bs.batchSize)
	if head := bs.feed.Length(); limit > head {
		limit = head
	}
	if bs.bounded && limit > bs.end {
		limit = bs.end
	}
	return limit
}

func (bs *BatchStream) Close() error { return nil }

// waitForFeedGrowth blocks until feed's length exceeds after, ctx is done,
// or the feed closes. LogHandle doesn't expose a generic wait primitive in
// its interface (only OnAppend), so we bridge it into a channel here; it has
// no close notification either, so Closed is polled while waiting.
func waitForFeedGrowth(ctx context.Context, feed LogHandle, after uint64) error {
	if feed.Length() > after {
		return nil
	}
	woke := make(chan struct{}, 1)
	unregister := feed.OnAppend(func(seq uint64) {
		select {
		case woke <- struct{}{}:
		default:
		}
	})
	defer unregister()

	// Re-check after registering to avoid missing an append that happened
	// between the initial check and OnAppend taking effect.
	if feed.Length() > after {
		return nil
	}
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-woke:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			if feed.Closed() {
				return nil
			}
		}
	}
}
