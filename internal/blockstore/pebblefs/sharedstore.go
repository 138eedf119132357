package pebblefs

import (
	"errors"
	"time"

	"github.com/cockroachdb/pebble"
)

// FsyncMode controls WAL durability for the shared Pebble instance backing
// this package's Factory and pebbletrie's Factory.
type FsyncMode int

const (
	FsyncModeUnspecified FsyncMode = iota
	// FsyncModeAlways syncs the WAL on every committed batch.
	FsyncModeAlways
	// FsyncModeInterval lets Pebble coalesce WAL syncs within FsyncInterval,
	// trading a small durability window for throughput under load.
	FsyncModeInterval
	// FsyncModeNever never forces a WAL sync from the application; Pebble
	// may still sync on its own schedule. Use only where losing the last
	// few writes on a crash is acceptable (e.g. ephemeral test stores).
	FsyncModeNever
)

// Options configures OpenShared.
type Options struct {
	// DataDir is the directory the Pebble database lives in.
	DataDir string
	// Fsync selects the WAL durability policy for block-container and
	// index writes.
	Fsync FsyncMode
	// FsyncInterval controls group-commit when Fsync is FsyncModeInterval.
	FsyncInterval time.Duration
	// PebbleOptions allows advanced tuning. If nil, sensible defaults apply.
	PebbleOptions *pebble.Options
}

// SharedStore is the single physical Pebble handle a durable feed-store
// instance roots both its block containers (pebblefs.Factory) and its path
// index (pebbletrie.Factory) in, so both concerns live in one Pebble
// database rather than two (see internal/runtime.Open).
type SharedStore struct {
	inner     *pebble.DB
	writeSync bool
}

// OpenShared creates or opens the Pebble database at opts.DataDir.
func OpenShared(opts Options) (*SharedStore, error) {
	if opts.DataDir == "" {
		return nil, errors.New("pebblefs: Options.DataDir is required")
	}

	po := opts.PebbleOptions
	if po == nil {
		po = &pebble.Options{}
	}

	switch opts.Fsync {
	case FsyncModeAlways:
		// Sync is requested per-commit via CommitBatch; WALMinSyncInterval
		// stays at its default of 0.
	case FsyncModeInterval:
		if opts.FsyncInterval <= 0 {
			opts.FsyncInterval = 5 * time.Millisecond
		}
		po.WALMinSyncInterval = func() time.Duration { return opts.FsyncInterval }
	case FsyncModeNever:
		// Neither WALMinSyncInterval nor per-commit Sync is set.
	default:
		po.WALMinSyncInterval = func() time.Duration { return 5 * time.Millisecond }
	}

	inner, err := pebble.Open(opts.DataDir, po)
	if err != nil {
		return nil, err
	}

	return &SharedStore{inner: inner, writeSync: opts.Fsync == FsyncModeAlways}, nil
}

// Close closes the underlying Pebble database.
func (s *SharedStore) Close() error {
	if s == nil || s.inner == nil {
		return nil
	}
	return s.inner.Close()
}

// NewBatch starts a new atomic multi-key batch.
func (s *SharedStore) NewBatch() *pebble.Batch { return s.inner.NewBatch() }

// CommitBatch commits b under the store's fsync policy.
func (s *SharedStore) CommitBatch(b *pebble.Batch) error {
	if b == nil {
		return errors.New("pebblefs: nil batch")
	}
	syncMode := pebble.NoSync
	if s.writeSync {
		syncMode = pebble.Sync
	}
	return b.Commit(syncMode)
}

// Set writes key/value in a single-op batch respecting the fsync policy.
func (s *SharedStore) Set(key, value []byte) error {
	b := s.inner.NewBatch()
	defer b.Close()
	if err := b.Set(key, value, nil); err != nil {
		return err
	}
	return s.CommitBatch(b)
}

// Delete removes key in a single-op batch respecting the fsync policy.
func (s *SharedStore) Delete(key []byte) error {
	b := s.inner.NewBatch()
	defer b.Close()
	if err := b.Delete(key, nil); err != nil {
		return err
	}
	return s.CommitBatch(b)
}

// Get copies out the value stored under key.
func (s *SharedStore) Get(key []byte) ([]byte, error) {
	val, closer, err := s.inner.Get(key)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), val...), nil
}

// NewIter opens a raw Pebble iterator, used by pebbletrie for prefix scans.
func (s *SharedStore) NewIter(opts *pebble.IterOptions) (*pebble.Iterator, error) {
	return s.inner.NewIter(opts)
}
