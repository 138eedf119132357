package feedstore

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dxos-deprecated/feed-store/internal/ferrors"
	"github.com/dxos-deprecated/feed-store/pkg/id"
)

// errClosed is returned internally by drainFeed when the reader was
// destroyed while trying to push an admitted message; it never escapes to
// a caller.
var errClosed = errors.New("feedstore: reader closed")

// feedBuffer holds one attached feed's not-yet-admitted messages. A
// dedicated goroutine (admissionEngine.pumpFeed) keeps it filled from the
// feed's batch stream; the admission loop only ever reads and pops from
// its head, matching spec §4.6/§4.7's "rejected messages are pushed back
// at the head of the per-feed buffer".
type feedBuffer struct {
	d   *FeedDescriptor
	key string

	mu        sync.Mutex
	queue     []Message
	exhausted bool
}

// admissionEngine is the machinery shared by the Selective and Ordered
// readers (spec §4.6, §4.7): both pull from per-feed buffers and apply the
// same predicate/never-skip-a-rejected-head discipline. They differ only
// in feed traversal order per pass (see selective_reader.go and
// ordered_reader.go), which is why this type does not decide that order
// itself — callers supply it via feedOrder.
type admissionEngine struct {
	id        id.ID
	store     *Store
	predicate Predicate
	batchSize int
	feedOrder func() []*feedBuffer

	out    chan Message
	errCh  chan error
	closed chan struct{}
	once   sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	feeds     map[string]*feedBuffer
	order     []string
	reading   bool
	needsData bool
	cancels   []context.CancelFunc

	admitted atomic.Uint64
	rejected atomic.Uint64

	// onDestroy detaches the owning reader from the store. Set by the
	// SelectiveReader/OrderedReader constructor so a predicate failure
	// (which destroys the engine internally, from runPasses) also
	// unregisters the reader, not just an explicit caller Destroy.
	onDestroy func()
}

func newAdmissionEngine(store *Store, predicate Predicate, batchSize int) *admissionEngine {
	if batchSize <= 0 {
		batchSize = 100
	}
	mergeBuffer := store.mergeBuffer
	if mergeBuffer <= 0 {
		mergeBuffer = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &admissionEngine{
		id:        readerIDs.Next(),
		store:     store,
		predicate: predicate,
		batchSize: batchSize,
		out:       make(chan Message, mergeBuffer),
		errCh:     make(chan error, 1),
		closed:    make(chan struct{}),
		ctx:       ctx,
		cancel:    cancel,
		feeds:     make(map[string]*feedBuffer),
	}
	return e
}

func (e *admissionEngine) attach(d *FeedDescriptor) {
	feed := d.Feed()
	if feed == nil {
		return
	}
	key := HexKey(d.Key())

	e.mu.Lock()
	if _, ok := e.feeds[key]; ok {
		e.mu.Unlock()
		return
	}
	fb := &feedBuffer{d: d, key: key}
	e.feeds[key] = fb
	e.order = append(e.order, key)
	e.mu.Unlock()

	fctx, cancel := context.WithCancel(e.ctx)
	e.mu.Lock()
	e.cancels = append(e.cancels, cancel)
	e.mu.Unlock()

	bs := NewBatchStream(feed, d.Key(), d.Path(), BatchStreamOptions{Live: true, BatchSize: e.batchSize})
	go e.pumpFeed(fctx, fb, bs)
}

func (e *admissionEngine) pumpFeed(ctx context.Context, fb *feedBuffer, bs *BatchStream) {
	for {
		batch, err := bs.Next(ctx)
		if err != nil {
			fb.mu.Lock()
			fb.exhausted = true
			fb.mu.Unlock()
			return
		}
		fb.mu.Lock()
		fb.queue = append(fb.queue, batch...)
		fb.mu.Unlock()
		e.scheduleWake()
	}
}

// scheduleWake starts a pass if none is running, or marks the running pass
// for an immediate rerun (spec §4.6's wake discipline / §9's
// (active, wake) pair).
func (e *admissionEngine) scheduleWake() {
	e.mu.Lock()
	if e.reading {
		e.needsData = true
		e.mu.Unlock()
		return
	}
	e.reading = true
	e.mu.Unlock()
	go e.runPasses()
}

func (e *admissionEngine) runPasses() {
	for {
		select {
		case <-e.ctx.Done():
			return
		default:
		}

		admittedAny, err := e.runOnePass()
		if err != nil {
			e.destroy(ferrors.Wrap(ferrors.ReaderFailed, "reader", err))
			return
		}

		e.mu.Lock()
		if admittedAny || e.needsData {
			e.needsData = false
			e.mu.Unlock()
			continue
		}
		e.reading = false
		e.mu.Unlock()
		return
	}
}

func (e *admissionEngine) runOnePass() (bool, error) {
	fbs := e.feedOrder()
	admittedAny := false
	for _, fb := range fbs {
		admitted, err := e.drainFeed(fb)
		if err != nil {
			return admittedAny, err
		}
		admittedAny = admittedAny || admitted
	}
	return admittedAny, nil
}

// drainFeed admits messages from the head of fb's buffer for as long as
// the predicate accepts them, stopping (without consuming) at the first
// rejection so the feed's internal order is preserved (spec §4.6, §4.7).
func (e *admissionEngine) drainFeed(fb *feedBuffer) (admitted bool, err error) {
	for {
		fb.mu.Lock()
		if len(fb.queue) == 0 {
			fb.mu.Unlock()
			return admitted, nil
		}
		msg := fb.queue[0]
		fb.mu.Unlock()

		ok, evalErr := e.predicate(e.ctx, fb.d, msg)
		if evalErr != nil {
			return admitted, evalErr
		}
		if !ok {
			e.rejected.Add(1)
			return admitted, nil
		}

		fb.mu.Lock()
		fb.queue = fb.queue[1:]
		fb.mu.Unlock()

		select {
		case e.out <- msg:
		case <-e.closed:
			return admitted, errClosed
		}
		admitted = true
		e.admitted.Add(1)
	}
}

// stats reports the engine's current admission counters (spec §9).
func (e *admissionEngine) stats() ReaderStats {
	e.mu.Lock()
	attached := uint64(len(e.feeds))
	e.mu.Unlock()
	return ReaderStats{
		Attached: attached,
		Admitted: e.admitted.Load(),
		Rejected: e.rejected.Load(),
	}
}

func (e *admissionEngine) destroy(err error) {
	e.once.Do(func() {
		e.cancel()
		e.mu.Lock()
		cancels := e.cancels
		e.mu.Unlock()
		for _, c := range cancels {
			c()
		}
		if err != nil && !errors.Is(err, errClosed) {
			select {
			case e.errCh <- err:
			default:
			}
		}
		close(e.closed)
		if e.onDestroy != nil {
			e.onDestroy()
		}
	})
}
