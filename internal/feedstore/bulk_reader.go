package feedstore

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/dxos-deprecated/feed-store/pkg/id"
)

// BulkFeedOptions is the per-descriptor options a BulkFilter returns to
// include a feed in a bulk read stream (spec §4.5).
type BulkFeedOptions struct {
	Start         uint64
	Live          bool
	FeedStoreInfo bool
}

// BulkFilter classifies a descriptor as excluded (second return false) or
// included with the returned options.
type BulkFilter func(d *FeedDescriptor) (BulkFeedOptions, bool)

// BulkReader merges all matching feeds into a single message sequence with
// per-feed sync-watermark detection (spec §4.5).
type BulkReader struct {
	id        id.ID
	store     *Store
	filter    BulkFilter
	batchSize int

	out    chan Message
	errCh  chan error
	closed chan struct{}
	once   sync.Once

	mu           sync.Mutex
	cohortClosed bool
	attached     map[string]bool
	pending      map[string]struct{}
	syncSeq      map[string]uint64
	synced       bool
	syncResult   map[string]uint64
	cancels      []context.CancelFunc

	admitted atomic.Uint64
	syncedN  atomic.Uint64

	onSynced emitter[map[string]uint64]
}

var _ readStream = (*BulkReader)(nil)

func newBulkReader(store *Store, filter BulkFilter, batchSize int) *BulkReader {
	if filter == nil {
		defaultLive := store.defaultLive
		filter = func(*FeedDescriptor) (BulkFeedOptions, bool) { return BulkFeedOptions{Live: defaultLive}, true }
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	mergeBuffer := store.mergeBuffer
	if mergeBuffer <= 0 {
		mergeBuffer = 64
	}
	return &BulkReader{
		id:        readerIDs.Next(),
		store:     store,
		filter:    filter,
		batchSize: batchSize,
		out:       make(chan Message, mergeBuffer),
		errCh:     make(chan error, 1),
		closed:    make(chan struct{}),
		attached:  make(map[string]bool),
		pending:   make(map[string]struct{}),
		syncSeq:   make(map[string]uint64),
	}
}

// CreateBulkReadStream instantiates a BulkReader over every currently
// opened descriptor matching filter, then subscribes it to future `feed`
// events (spec §4.4's createReadStream, §4.5). A nil filter includes every
// feed with default options, using internal/config's ReaderDefaultLive.
func (s *Store) CreateBulkReadStream(filter BulkFilter) *BulkReader {
	r := newBulkReader(s, filter, s.defaultBatch)
	if err := s.ensureServiceable(); err != nil {
		r.Destroy(err)
		return r
	}
	descriptors := s.attachReaderToExisting(r)
	for _, d := range descriptors {
		r.attach(d)
	}
	r.closeCohort()
	return r
}

// ID returns a sortable, process-unique identifier for this reader,
// useful for correlating log lines and Stats() output across readers.
func (r *BulkReader) ID() string { return r.id.String() }

// Messages is the reader's output stream.
func (r *BulkReader) Messages() <-chan Message { return r.out }

// Done is closed when the reader is destroyed (stream end, spec §5).
func (r *BulkReader) Done() <-chan struct{} { return r.closed }

// Err returns the error Destroy was called with, if any. Only meaningful
// after Done is closed.
func (r *BulkReader) Err() error {
	select {
	case err := <-r.errCh:
		return err
	default:
		return nil
	}
}

// OnSynced registers a callback for the `synced` event (spec §4.5, §6).
// It fires at most once per reader; a callback registered after it fired
// is called at once with the same watermark map.
func (r *BulkReader) OnSynced(cb func(map[string]uint64)) func() {
	r.mu.Lock()
	if !r.synced {
		unregister := r.onSynced.On(cb)
		r.mu.Unlock()
		return unregister
	}
	result := make(map[string]uint64, len(r.syncResult))
	for k, v := range r.syncResult {
		result[k] = v
	}
	r.mu.Unlock()
	cb(result)
	return func() {}
}

// Stats reports the reader's current admission counters (spec §9). Bulk
// readers have no predicate, so Rejected is always zero.
func (r *BulkReader) Stats() ReaderStats {
	r.mu.Lock()
	attached := uint64(len(r.attached))
	r.mu.Unlock()
	return ReaderStats{
		Attached: attached,
		Admitted: r.admitted.Load(),
		Synced:   r.syncedN.Load(),
	}
}

func (r *BulkReader) closeCohort() {
	r.mu.Lock()
	r.cohortClosed = true
	empty := len(r.pending) == 0
	r.mu.Unlock()
	if empty {
		r.emitSyncedIfDue()
	}
}

func (r *BulkReader) emitSyncedIfDue() {
	r.mu.Lock()
	if r.synced || !r.cohortClosed || len(r.pending) != 0 {
		r.mu.Unlock()
		return
	}
	r.synced = true
	result := make(map[string]uint64, len(r.syncSeq))
	for k, v := range r.syncSeq {
		result[k] = v
	}
	r.syncResult = result
	r.mu.Unlock()
	r.onSynced.Emit(result)
}

// attach implements readStream: it is called once per descriptor, either
// during the reader's creation (the sync cohort) or later on a `feed`
// event (hot-attach). Feeds attached after the cohort closes are merged
// into the output but excluded from the sync watermark (spec §9's open
// question: late-attached feeds are excluded from `synced`).
func (r *BulkReader) attach(d *FeedDescriptor) {
	opts, include := r.filter(d)
	if !include {
		return
	}
	key := HexKey(d.Key())

	r.mu.Lock()
	if r.attached[key] {
		r.mu.Unlock()
		return
	}
	r.attached[key] = true
	trackSync := !r.cohortClosed
	r.mu.Unlock()

	feed := d.Feed()
	if feed == nil {
		return
	}

	if trackSync {
		if head := feed.Length(); head > 0 {
			r.mu.Lock()
			r.pending[key] = struct{}{}
			r.mu.Unlock()
		} else {
			trackSync = false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancels = append(r.cancels, cancel)
	r.mu.Unlock()

	bs := NewBatchStream(feed, d.Key(), d.Path(), BatchStreamOptions{Start: opts.Start, Live: opts.Live, BatchSize: r.batchSize})
	go r.pump(ctx, d, bs, opts.FeedStoreInfo, key, trackSync)
}

func (r *BulkReader) pump(ctx context.Context, d *FeedDescriptor, bs *BatchStream, enrich bool, key string, trackSync bool) {
	for {
		batch, err := bs.Next(ctx)
		if err != nil {
			return
		}
		for _, m := range batch {
			if enrich {
				m.Metadata = d.Snapshot().Metadata
			}
			select {
			case r.out <- m:
			case <-r.closed:
				return
			case <-ctx.Done():
				return
			}
			r.admitted.Add(1)
			if trackSync && m.Sync {
				r.mu.Lock()
				delete(r.pending, key)
				r.syncSeq[key] = m.Seq
				r.mu.Unlock()
				r.syncedN.Add(1)
				r.emitSyncedIfDue()
			}
		}
	}
}

// Destroy ends the reader's output stream and detaches it from the store
// (spec §5's "cancelled by destroy(error?)").
func (r *BulkReader) Destroy(err error) {
	r.once.Do(func() {
		r.mu.Lock()
		cancels := r.cancels
		r.mu.Unlock()
		for _, cancel := range cancels {
			cancel()
		}
		if err != nil {
			select {
			case r.errCh <- err:
			default:
			}
		}
		close(r.closed)
		r.store.unregisterReader(r)
	})
}
