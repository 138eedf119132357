package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/dxos-deprecated/feed-store/internal/blockstore/memstore"
	"github.com/dxos-deprecated/feed-store/internal/blockstore/pebblefs"
	codecpkg "github.com/dxos-deprecated/feed-store/internal/codec"
	"github.com/dxos-deprecated/feed-store/internal/config"
	"github.com/dxos-deprecated/feed-store/internal/feedstore"
	"github.com/dxos-deprecated/feed-store/internal/logengine"
	"github.com/dxos-deprecated/feed-store/internal/triekv/memtrie"
	"github.com/dxos-deprecated/feed-store/internal/triekv/pebbletrie"
)

// Options configures the Runtime. An empty DataDir selects the in-memory
// backend (memstore/memtrie), useful for tests and ephemeral CLI use; a
// non-empty DataDir opens a Pebble database at that path and roots both the
// blockstore and the IndexDB trie in it.
type Options struct {
	DataDir string
	Fsync   pebblefs.FsyncMode
	Config  config.Config
}

// Runtime wires storage, the default log engine, and a ready feedstore.Store
// for a single-node instance.
type Runtime struct {
	db    *pebblefs.SharedStore
	store *feedstore.Store
	cfg   config.Config
}

// Open initializes storage, constructs the Store, and Initializes it (spec
// §4.4), returning a Runtime ready for OpenFeed calls.
func Open(opts Options) (*Runtime, error) {
	cfg := opts.Config
	if cfg == (config.Config{}) {
		cfg = config.Default()
	}

	var storage feedstore.Storage
	var trieFactory feedstore.TrieFactory
	var db *pebblefs.SharedStore

	if opts.DataDir == "" {
		storage = memstore.New()
		trieFactory = memtrie.New()
	} else {
		var err error
		db, err = pebblefs.OpenShared(pebblefs.Options{DataDir: opts.DataDir, Fsync: opts.Fsync})
		if err != nil {
			return nil, err
		}
		storage = pebblefs.New(db)
		trieFactory = pebbletrie.New(db)
	}

	store := feedstore.New(feedstore.Options{
		Storage:         storage,
		TrieFactory:     trieFactory,
		IndexTrieName:   "index",
		Engine:          logengine.New(),
		DiscoveryKeyFn:  logengine.DiscoveryKey,
		KeyPairFn:       logengine.GenerateKeyPair,
		Codecs:          codecpkg.NewRegistry(),
		IndexNamespace:  cfg.IndexNamespace,
		OpenTimeout:     cfg.DescriptorOpenTimeout,
		CloseTimeout:    cfg.DescriptorCloseTimeout,
		DefaultEncoding: cfg.DefaultValueEncoding,
		DefaultBatch:    cfg.DefaultBatchSize,
		DefaultLive:     cfg.ReaderDefaultLive,
		MergeBuffer:     cfg.ReaderMergeBuffer,
	})

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.Initialize(initCtx); err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	return &Runtime{db: db, store: store, cfg: cfg}, nil
}

// Store returns the runtime's feedstore.Store.
func (r *Runtime) Store() *feedstore.Store { return r.store }

// Config returns the runtime's configuration.
func (r *Runtime) Config() config.Config { return r.cfg }

// Close closes the store and the underlying Pebble database, if any.
func (r *Runtime) Close() error {
	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := r.store.Close(closeCtx)
	if r.db != nil {
		if dbErr := r.db.Close(); dbErr != nil && err == nil {
			err = dbErr
		}
	}
	return err
}

// CheckHealth reports whether the store is open.
func (r *Runtime) CheckHealth(ctx context.Context) error {
	if r.store.State() != feedstore.StateOpened {
		return errors.New("runtime: store not open")
	}
	return nil
}
