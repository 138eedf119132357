package feedstore

import (
	"context"
	"sync"
	"time"

	"github.com/dxos-deprecated/feed-store/internal/asyncmutex"
	"github.com/dxos-deprecated/feed-store/internal/ferrors"
	"github.com/dxos-deprecated/feed-store/internal/triekv"
	"github.com/dxos-deprecated/feed-store/pkg/id"
)

// readerIDs tags every reader (Bulk/Selective/Ordered) with a sortable,
// process-unique ID so log output and Stats() can tell readers apart
// without exposing pointer identity.
var readerIDs = id.NewGenerator()

// readStream is the bookkeeping surface CreateReadStream's three concrete
// readers all implement so the store can fan out `feed` events and detach
// on end-of-stream without knowing which reader family it is holding.
type readStream interface {
	attach(d *FeedDescriptor)
	Destroy(err error)
}

// Options configures a Store (spec §6's collaborators plus the ambient
// timeouts/defaults of internal/config).
type Options struct {
	Storage         Storage
	TrieFactory     TrieFactory
	IndexTrieName   string
	Engine          LogEngineFactory
	DiscoveryKeyFn  DiscoveryKeyFunc
	KeyPairFn       KeyPairFunc
	Codecs          *CodecRegistry
	IndexNamespace  string
	OpenTimeout     time.Duration
	CloseTimeout    time.Duration
	DefaultEncoding string
	DefaultBatch    int
	// DefaultLive is the `live` option CreateBulkReadStream(nil)'s default
	// filter uses (internal/config's ReaderDefaultLive, spec §4.5); a
	// caller-supplied BulkFilter sets Live itself.
	DefaultLive bool
	// MergeBuffer sizes every reader's output channel, bounding how far a
	// slow consumer can lag before Messages() backpressures the merge
	// (internal/config's ReaderMergeBuffer, spec §4.5/§5).
	MergeBuffer int
}

// Store is the FeedStore orchestrator of spec §4.4.
type Store struct {
	storage        Storage
	engine         LogEngineFactory
	discoveryKeyFn DiscoveryKeyFunc
	keyPairFn      KeyPairFunc
	codecs         *CodecRegistry
	openTO         time.Duration
	closeTO        time.Duration
	defaultEnc     string
	defaultBatch   int
	defaultLive    bool
	mergeBuffer    int

	indexDB *IndexDB

	storeLock *asyncmutex.Mutex

	mu          sync.Mutex
	state       State
	byDiscovery map[string]*FeedDescriptor // hex(discoveryKey) -> descriptor
	byPath      map[string]*FeedDescriptor
	byKey       map[string]*FeedDescriptor // hex(key) -> descriptor
	readers     map[readStream]struct{}

	onReady            emitter[struct{}]
	onClosed           emitter[struct{}]
	onFeed             emitter[FeedEvent]
	onDescriptorRemove emitter[*FeedDescriptor]
	onAppend           emitter[AppendEvent]
	onDownload         emitter[DownloadEvent]
}

// New constructs a Store in the closed state.
func New(opts Options) *Store {
	mergeBuffer := opts.MergeBuffer
	if mergeBuffer <= 0 {
		mergeBuffer = 64
	}
	trie, err := opts.TrieFactory.Open(opts.IndexTrieName)
	if err != nil {
		// The trie factory contract (spec §6) allows Open to fail; New has
		// no error return by design (mirrors the reference implementation's
		// constructor), so a failing Open is surfaced on the first
		// Initialize call instead, via a trie that always errors.
		trie = &failingTrie{err: err}
	}
	return &Store{
		storage:        opts.Storage,
		engine:         opts.Engine,
		discoveryKeyFn: opts.DiscoveryKeyFn,
		keyPairFn:      opts.KeyPairFn,
		codecs:         opts.Codecs,
		openTO:         opts.OpenTimeout,
		closeTO:        opts.CloseTimeout,
		defaultEnc:      opts.DefaultEncoding,
		defaultBatch:   opts.DefaultBatch,
		defaultLive:    opts.DefaultLive,
		mergeBuffer:    mergeBuffer,
		indexDB:        NewIndexDB(trie, opts.IndexNamespace),
		storeLock:      asyncmutex.New(),
		state:          StateClosed,
		byDiscovery:    make(map[string]*FeedDescriptor),
		byPath:         make(map[string]*FeedDescriptor),
		byKey:          make(map[string]*FeedDescriptor),
		readers:        make(map[readStream]struct{}),
	}
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnReady/OnClosed/OnFeed/OnDescriptorRemove/OnAppend/OnDownload register
// observers for the store's event surface (spec §6).
func (s *Store) OnReady(cb func())                                 { s.onReady.On(func(struct{}) { cb() }) }
func (s *Store) OnClosed(cb func())                                { s.onClosed.On(func(struct{}) { cb() }) }
func (s *Store) OnFeed(cb func(FeedEvent))                         { s.onFeed.On(cb) }
func (s *Store) OnDescriptorRemove(cb func(*FeedDescriptor))       { s.onDescriptorRemove.On(cb) }
func (s *Store) OnAppend(cb func(AppendEvent))                     { s.onAppend.On(cb) }
func (s *Store) OnDownload(cb func(DownloadEvent))                 { s.onDownload.On(cb) }

// Initialize lists all IndexDB records under the index namespace, creates
// a (closed) descriptor for each, and moves the store to opened (spec
// §4.4). It is at-most-once: calling it again on an already-opening or
// opened store is a no-op.
func (s *Store) Initialize(ctx context.Context) error {
	release, err := s.storeLock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	if s.state != StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateOpening
	s.mu.Unlock()

	records, err := s.indexDB.List()
	if err != nil {
		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()
		return err
	}

	for _, rec := range records {
		s.registerDescriptor(rec.Path, rec.Key, rec.SecretKey, rec.ValueEncoding, rec.Metadata)
	}

	s.mu.Lock()
	s.state = StateOpened
	s.mu.Unlock()

	s.onReady.Emit(struct{}{})
	return nil
}

// registerDescriptor creates and indexes a descriptor without opening its
// feed, and wires its watcher to the store's persistence and event-fanout
// duties (spec §4.4: "once opened fires, persist ... and emit feed").
// Tying this to the watcher rather than to "was this path newly created"
// makes it correct for the concurrent-open case too: the watcher only
// fires once, on the descriptor's actual closed->opened transition,
// regardless of how many callers raced into OpenFeed.
func (s *Store) registerDescriptor(path string, key, secretKey []byte, valueEncoding string, metadata interface{}) *FeedDescriptor {
	if valueEncoding == "" {
		valueEncoding = s.defaultEnc
	}
	discoveryKey := s.discoveryKeyFn(key)
	d := NewFeedDescriptor(s.engine, s.storage, s.openTO, s.closeTO, path, key, secretKey, discoveryKey, valueEncoding, metadata)
	d.Watch(func(evt WatchEvent, d *FeedDescriptor) {
		switch evt {
		case WatchOpened:
			s.handleDescriptorOpened(d)
		case WatchUpdated:
			s.handleDescriptorUpdated(d)
		}
	})

	s.mu.Lock()
	s.byDiscovery[HexKey(discoveryKey)] = d
	s.byPath[path] = d
	s.byKey[HexKey(key)] = d
	s.mu.Unlock()
	return d
}

// handleDescriptorOpened runs once per open-to-close interval, exactly
// when the descriptor transitions to opened (spec §5's "the feed event ...
// is emitted exactly once per open-to-close interval").
func (s *Store) handleDescriptorOpened(d *FeedDescriptor) {
	feed := d.Feed()
	if err := s.indexDB.Put(HexKey(d.Key()), d.Record()); err != nil {
		return
	}
	s.subscribeFeedEvents(feed, d)
	s.onFeed.Emit(FeedEvent{Handle: feed, Descriptor: d})

	s.mu.Lock()
	readers := make([]readStream, 0, len(s.readers))
	for r := range s.readers {
		readers = append(readers, r)
	}
	s.mu.Unlock()
	for _, r := range readers {
		r.attach(d)
	}
}

// handleDescriptorUpdated re-persists the descriptor's record after an
// explicit SetMetadata (spec §4.3, §9's open question on the mutation
// path).
func (s *Store) handleDescriptorUpdated(d *FeedDescriptor) {
	_ = s.indexDB.Put(HexKey(d.Key()), d.Record())
}

// ensureServiceable returns a Closed error unless the store is opening or
// opened.
func (s *Store) ensureServiceable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StateClosing {
		return ferrors.New(ferrors.Closed, "store", "store is not open")
	}
	return nil
}

// OpenFeed implements spec §4.4's openFeed contract.
func (s *Store) OpenFeed(ctx context.Context, path string, opts OpenOptions) (LogHandle, *FeedDescriptor, error) {
	if path == "" {
		return nil, nil, ferrors.New(ferrors.MissingPath, "openFeed", "path must be non-empty")
	}
	if err := s.ensureServiceable(); err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	existing := s.byPath[path]
	s.mu.Unlock()

	var d *FeedDescriptor

	if existing != nil {
		if len(opts.Key) > 0 {
			existingKey := existing.Key()
			if HexKey(existingKey) != HexKey(opts.Key) {
				return nil, nil, ferrors.New(ferrors.KeyMismatch, "openFeed", "path already bound to a different key")
			}
		}
		d = existing
	} else {
		key, secretKey := opts.Key, opts.SecretKey
		if len(key) == 0 {
			var err error
			key, secretKey, err = s.keyPairFn()
			if err != nil {
				return nil, nil, ferrors.Wrap(ferrors.BadKey, "openFeed", err)
			}
		} else {
			s.mu.Lock()
			bound, ok := s.byKey[HexKey(key)]
			s.mu.Unlock()
			if ok && bound.Path() != path {
				return nil, nil, ferrors.New(ferrors.DuplicateKey, "openFeed", "key already bound to another path")
			}
		}
		encoding := opts.ValueEncoding
		if encoding == "" {
			encoding = s.defaultEnc
		}
		d = s.registerDescriptor(path, key, secretKey, encoding, opts.Metadata)
	}

	feed, err := d.Open(ctx)
	if err != nil {
		return nil, nil, err
	}
	return feed, d, nil
}

func (s *Store) subscribeFeedEvents(feed LogHandle, d *FeedDescriptor) {
	feed.OnAppend(func(seq uint64) {
		s.onAppend.Emit(AppendEvent{Handle: feed, Descriptor: d, Seq: seq})
	})
	feed.OnDownload(func(seq uint64, data []byte) {
		s.onDownload.Emit(DownloadEvent{Index: seq, Data: data, Handle: feed, Descriptor: d})
	})
}

// CloseFeed closes the descriptor for path.
func (s *Store) CloseFeed(ctx context.Context, path string) error {
	s.mu.Lock()
	d, ok := s.byPath[path]
	s.mu.Unlock()
	if !ok {
		return ferrors.New(ferrors.NotFound, "closeFeed", path)
	}
	return d.Close(ctx)
}

// DeleteDescriptor removes the index record and unregisters the
// descriptor, without closing any open feed handle (spec §4.4, §9's open
// question kept non-closing).
func (s *Store) DeleteDescriptor(ctx context.Context, path string) error {
	s.mu.Lock()
	d, ok := s.byPath[path]
	s.mu.Unlock()
	if !ok {
		return ferrors.New(ferrors.NotFound, "deleteDescriptor", path)
	}

	release, err := d.Lock(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := s.indexDB.Delete(HexKey(d.Key())); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.byDiscovery, HexKey(d.DiscoveryKey()))
	delete(s.byPath, path)
	delete(s.byKey, HexKey(d.Key()))
	s.mu.Unlock()

	s.onDescriptorRemove.Emit(d)
	return nil
}

// OpenFeeds opens every registered descriptor matching filter (nil means
// all) and returns their handles.
func (s *Store) OpenFeeds(ctx context.Context, filter func(*FeedDescriptor) bool) ([]LogHandle, error) {
	for _, d := range s.GetDescriptors(filter) {
		if _, err := d.Open(ctx); err != nil {
			return nil, err
		}
	}
	return s.GetOpenFeeds(filter), nil
}

// GetOpenFeeds returns the handles of every opened descriptor matching
// filter (nil means all).
func (s *Store) GetOpenFeeds(filter func(*FeedDescriptor) bool) []LogHandle {
	var out []LogHandle
	for _, d := range s.GetDescriptors(filter) {
		snap := d.Snapshot()
		if snap.State == StateOpened {
			out = append(out, snap.Feed)
		}
	}
	return out
}

// GetOpenFeed returns the first opened descriptor's handle matching
// filter, or (nil, false).
func (s *Store) GetOpenFeed(filter func(*FeedDescriptor) bool) (LogHandle, bool) {
	feeds := s.GetOpenFeeds(filter)
	if len(feeds) == 0 {
		return nil, false
	}
	return feeds[0], true
}

// GetDescriptors returns every registered descriptor matching filter (nil
// means all), in unspecified order (spec §9's cross-run determinism note).
func (s *Store) GetDescriptors(filter func(*FeedDescriptor) bool) []*FeedDescriptor {
	s.mu.Lock()
	all := make([]*FeedDescriptor, 0, len(s.byDiscovery))
	for _, d := range s.byDiscovery {
		all = append(all, d)
	}
	s.mu.Unlock()

	if filter == nil {
		return all
	}
	out := all[:0:0]
	for _, d := range all {
		if filter(d) {
			out = append(out, d)
		}
	}
	return out
}

// GetDescriptorByDiscoveryKey returns the descriptor for the given
// discoveryKey.
func (s *Store) GetDescriptorByDiscoveryKey(discoveryKey []byte) (*FeedDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byDiscovery[HexKey(discoveryKey)]
	return d, ok
}

// GetDescriptorByPath returns the descriptor for path.
func (s *Store) GetDescriptorByPath(path string) (*FeedDescriptor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byPath[path]
	return d, ok
}

// Close moves the store to closing, closes every descriptor concurrently,
// clears the descriptor map, closes IndexDB, and moves to closed (spec
// §4.4). Any descriptor close failure is surfaced after all closes are
// attempted.
func (s *Store) Close(ctx context.Context) error {
	release, err := s.storeLock.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}
	s.state = StateClosing
	descriptors := make([]*FeedDescriptor, 0, len(s.byDiscovery))
	for _, d := range s.byDiscovery {
		descriptors = append(descriptors, d)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, len(descriptors))
	for i, d := range descriptors {
		wg.Add(1)
		go func(i int, d *FeedDescriptor) {
			defer wg.Done()
			errs[i] = d.Close(ctx)
		}(i, d)
	}
	wg.Wait()

	var firstErr error
	for _, e := range errs {
		if e != nil && firstErr == nil {
			firstErr = e
		}
	}

	s.mu.Lock()
	s.byDiscovery = make(map[string]*FeedDescriptor)
	s.byPath = make(map[string]*FeedDescriptor)
	s.byKey = make(map[string]*FeedDescriptor)
	s.mu.Unlock()

	if err := s.indexDB.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	s.onClosed.Emit(struct{}{})
	return firstErr
}

func (s *Store) registerReader(r readStream) {
	s.mu.Lock()
	s.readers[r] = struct{}{}
	s.mu.Unlock()
}

// attachReaderToExisting registers r as a live reader and returns a
// snapshot of every currently opened descriptor, atomically with respect
// to concurrent descriptor opens: any descriptor whose open completes
// after this call observes r in s.readers and drives r.attach itself
// (handleDescriptorOpened), so no descriptor is silently skipped.
func (s *Store) attachReaderToExisting(r readStream) []*FeedDescriptor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readers[r] = struct{}{}
	out := make([]*FeedDescriptor, 0, len(s.byDiscovery))
	for _, d := range s.byDiscovery {
		if d.State() == StateOpened {
			out = append(out, d)
		}
	}
	return out
}

func (s *Store) unregisterReader(r readStream) {
	s.mu.Lock()
	delete(s.readers, r)
	s.mu.Unlock()
}

// failingTrie makes a TrieFactory.Open error surface lazily on first use,
// matching New's no-error-return constructor shape.
type failingTrie struct{ err error }

func (t *failingTrie) Put(string, []byte) error            { return t.err }
func (t *failingTrie) Get(string) ([]byte, bool, error)     { return nil, false, t.err }
func (t *failingTrie) Del(string) error                     { return t.err }
func (t *failingTrie) List(string) ([]triekv.Entry, error)   { return nil, t.err }
func (t *failingTrie) Close() error                          { return nil }
