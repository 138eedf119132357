package feedstore

import (
	"context"
	"sync"
	"time"

	"github.com/dxos-deprecated/feed-store/internal/asyncmutex"
	"github.com/dxos-deprecated/feed-store/internal/blockstore"
	"github.com/dxos-deprecated/feed-store/internal/ferrors"
)

// FeedDescriptor is the persistable identity plus in-memory lifecycle
// object for a single feed (spec §4.2). All mutation of its state and feed
// handle happens under lock; readers of Snapshot see a consistent view
// taken atomically under the same mutex.
type FeedDescriptor struct {
	engine  LogEngineFactory
	storage Storage
	openTO  time.Duration
	closeTO time.Duration

	lock *asyncmutex.Mutex

	mu            sync.Mutex
	path          string
	key           []byte
	secretKey     []byte
	discoveryKey  []byte
	valueEncoding string
	metadata      interface{}
	feed          LogHandle
	state         State
	watchers      []Watcher
}

// NewFeedDescriptor constructs a descriptor in the closed state. discoveryKey
// must already be derived by the caller (spec §1: derivation is an external
// primitive).
func NewFeedDescriptor(engine LogEngineFactory, storage Storage, openTO, closeTO time.Duration, path string, key, secretKey, discoveryKey []byte, valueEncoding string, metadata interface{}) *FeedDescriptor {
	return &FeedDescriptor{
		engine:        engine,
		storage:       storage,
		openTO:        openTO,
		closeTO:       closeTO,
		lock:          asyncmutex.New(),
		path:          path,
		key:           key,
		secretKey:     secretKey,
		discoveryKey:  discoveryKey,
		valueEncoding: valueEncoding,
		metadata:      metadata,
		state:         StateClosed,
	}
}

// Snapshot returns a point-in-time copy of the descriptor's persistable
// fields plus its current state and feed handle.
type Snapshot struct {
	Path          string
	Key           []byte
	SecretKey     []byte
	DiscoveryKey  []byte
	ValueEncoding string
	Metadata      interface{}
	Feed          LogHandle
	State         State
}

func (d *FeedDescriptor) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Snapshot{
		Path:          d.path,
		Key:           d.key,
		SecretKey:     d.secretKey,
		DiscoveryKey:  d.discoveryKey,
		ValueEncoding: d.valueEncoding,
		Metadata:      d.metadata,
		Feed:          d.feed,
		State:         d.state,
	}
}

// Record returns the IndexDB record for this descriptor's current state.
func (d *FeedDescriptor) Record() Record {
	s := d.Snapshot()
	return Record{Path: s.Path, Key: s.Key, SecretKey: s.SecretKey, ValueEncoding: s.ValueEncoding, Metadata: s.Metadata}
}

func (d *FeedDescriptor) Path() string         { return d.Snapshot().Path }
func (d *FeedDescriptor) Key() []byte          { return d.Snapshot().Key }
func (d *FeedDescriptor) DiscoveryKey() []byte { return d.Snapshot().DiscoveryKey }
func (d *FeedDescriptor) State() State         { return d.Snapshot().State }
func (d *FeedDescriptor) Feed() LogHandle      { return d.Snapshot().Feed }

// Watch registers callback to be invoked on opened/updated/closed
// transitions and returns a function that unregisters it.
func (d *FeedDescriptor) Watch(w Watcher) func() {
	d.mu.Lock()
	d.watchers = append(d.watchers, w)
	idx := len(d.watchers) - 1
	d.mu.Unlock()
	return func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		if idx < len(d.watchers) {
			d.watchers[idx] = nil
		}
	}
}

func (d *FeedDescriptor) fire(evt WatchEvent) {
	d.mu.Lock()
	watchers := append([]Watcher(nil), d.watchers...)
	d.mu.Unlock()
	for _, w := range watchers {
		if w != nil {
			w(evt, d)
		}
	}
}

// Lock exposes the descriptor's mutex for cross-cutting critical sections
// such as deletion (spec §4.2).
func (d *FeedDescriptor) Lock(ctx context.Context) (asyncmutex.Release, error) {
	return d.lock.Acquire(ctx)
}

// Open acquires the descriptor lock and ensures the feed is opened,
// returning its handle. Concurrent Opens are serialized by the lock and,
// once one has succeeded, subsequent Opens (concurrent or not) observe
// the opened state and return the same handle immediately (spec §8:
// "the underlying log is instantiated exactly once").
func (d *FeedDescriptor) Open(ctx context.Context) (LogHandle, error) {
	release, err := d.lock.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	d.mu.Lock()
	if d.state == StateOpened {
		feed := d.feed
		d.mu.Unlock()
		return feed, nil
	}
	d.state = StateOpening
	key, secretKey, valueEncoding := d.key, d.secretKey, d.valueEncoding
	d.mu.Unlock()

	rooted := blockstore.Rooted(d.storage, HexKey(key))
	feed, err := d.engine.Open(rooted, key, LogEngineOpenOptions{SecretKey: secretKey, ValueEncoding: valueEncoding})
	if err != nil {
		d.mu.Lock()
		d.state = StateClosed
		d.mu.Unlock()
		return nil, ferrors.Wrap(ferrors.EngineError, "descriptor.open", err)
	}

	readyCtx, cancel := context.WithTimeout(ctx, d.openTO)
	defer cancel()
	if err := feed.Ready(readyCtx); err != nil {
		d.mu.Lock()
		d.state = StateClosed
		d.mu.Unlock()
		if readyCtx.Err() != nil {
			return nil, ferrors.New(ferrors.Timeout, "descriptor.open", "log engine did not become ready in time")
		}
		return nil, ferrors.Wrap(ferrors.EngineError, "descriptor.open", err)
	}

	d.mu.Lock()
	d.feed = feed
	d.state = StateOpened
	d.mu.Unlock()

	d.fire(WatchOpened)
	return feed, nil
}

// Close is idempotent: it is a no-op unless the descriptor is currently
// opened (spec §4.2).
func (d *FeedDescriptor) Close(ctx context.Context) error {
	release, err := d.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	d.mu.Lock()
	if d.state != StateOpened {
		d.mu.Unlock()
		return nil
	}
	d.state = StateClosing
	feed := d.feed
	d.mu.Unlock()

	closeCtx, cancel := context.WithTimeout(ctx, d.closeTO)
	defer cancel()
	if err := feed.Close(closeCtx); err != nil {
		// Leave the descriptor in `closing` per spec §4.2: "a failed close
		// leaves the descriptor in closing until a later close succeeds."
		if closeCtx.Err() != nil {
			return ferrors.New(ferrors.Timeout, "descriptor.close", "log engine did not close in time")
		}
		return ferrors.Wrap(ferrors.EngineError, "descriptor.close", err)
	}

	d.mu.Lock()
	d.feed = nil
	d.state = StateClosed
	d.mu.Unlock()

	d.fire(WatchClosed)
	return nil
}

// SetMetadata mutates metadata under lock and fires updated watchers so the
// store can re-persist the record.
func (d *FeedDescriptor) SetMetadata(ctx context.Context, metadata interface{}) error {
	release, err := d.lock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	d.mu.Lock()
	d.metadata = metadata
	d.mu.Unlock()

	d.fire(WatchUpdated)
	return nil
}
