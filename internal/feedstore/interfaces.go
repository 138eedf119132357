// Package feedstore implements the core described in spec §§3-5: feed
// lifecycle and locking (FeedDescriptor), the persistent feed index
// (IndexDB), and the three multi-feed reader strategies (Bulk, Selective,
// Ordered), all built against the injected collaborators of spec §6.
package feedstore

import (
	"context"

	"github.com/dxos-deprecated/feed-store/internal/blockstore"
	"github.com/dxos-deprecated/feed-store/internal/codec"
	"github.com/dxos-deprecated/feed-store/internal/triekv"
)

// Storage is the storage-factory collaborator of spec §6. It is exactly
// blockstore.Factory; the alias keeps this package's public surface
// self-describing without forcing every caller to import blockstore too.
type Storage = blockstore.Factory

// Trie is the trie-factory collaborator of spec §6.
type Trie = triekv.Trie

// TrieFactory opens the Trie IndexDB is built on.
type TrieFactory = triekv.Factory

// Codec is the codec collaborator of spec §6.
type Codec = codec.Codec

// CodecRegistry resolves codec names to Codecs, extending the built-ins.
type CodecRegistry = codec.Registry

// Block is one appended, opaque binary block together with its sequence
// number, as produced by a LogHandle's read paths.
type Block struct {
	Seq  uint64
	Data []byte
}

// ReadStreamOptions parameterizes LogHandle.CreateReadStream, mirroring the
// batch stream's own options (spec §4.8) at the log-engine level.
type ReadStreamOptions struct {
	Start    uint64
	End      uint64 // 0 means "unbounded"
	Live     bool
	Snapshot bool
}

// BlockReader delivers Blocks in increasing sequence order until it
// reaches End (if bounded) or is Closed. It never re-delivers a sequence.
type BlockReader interface {
	// Next blocks until the next Block is available, ctx is cancelled, or
	// the stream ends (io.EOF).
	Next(ctx context.Context) (Block, error)
	Close() error
}

// LogEngineOpenOptions parameterizes LogEngineFactory.Open.
type LogEngineOpenOptions struct {
	SecretKey     []byte
	ValueEncoding string
}

// LogHandle is the log-engine collaborator of spec §6: an opened,
// append-only, cryptographically-keyed block log.
type LogHandle interface {
	// Ready blocks until the engine has finished any asynchronous
	// initialization (spec §4.2's "waits for its ready signal").
	Ready(ctx context.Context) error

	// Close releases the engine's resources.
	Close(ctx context.Context) error

	// Append writes data as the next block and returns its sequence
	// number. It errors if the handle has no secret key.
	Append(ctx context.Context, data []byte) (seq uint64, err error)

	// Get returns the block at seq.
	Get(ctx context.Context, seq uint64) ([]byte, error)

	// GetBatch returns blocks [start, end).
	GetBatch(ctx context.Context, start, end uint64) ([]Block, error)

	// CreateReadStream opens a BlockReader per opts.
	CreateReadStream(opts ReadStreamOptions) BlockReader

	// Download is a replication placeholder: spec §1 puts the download
	// protocol out of scope for the core, but the collaborator contract
	// still exposes it (spec §6) so a real engine can wire replication in
	// without changing FeedStore. The default engine's Download always
	// returns immediately, since it has no peers to fetch from.
	Download(ctx context.Context, start, end uint64) error

	// Length returns one past the highest appended sequence number.
	Length() uint64

	Opened() bool
	Closed() bool

	// OnAppend/OnDownload register callbacks fired after a local append or
	// a completed download, matching spec §6's `append`/`download` events.
	// The returned function unregisters the callback.
	OnAppend(func(seq uint64)) func()
	OnDownload(func(seq uint64, data []byte)) func()
}

// LogEngineFactory is the log-engine factory collaborator of spec §6.
type LogEngineFactory interface {
	Open(storage Storage, key []byte, opts LogEngineOpenOptions) (LogHandle, error)
}

// DiscoveryKeyFunc derives a feed's discoveryKey from its public key (spec
// §3). Key derivation is explicitly out of scope for the core (spec §1);
// this is the seam a caller plugs a concrete scheme into. internal/runtime
// wires it to internal/logengine's default derivation.
type DiscoveryKeyFunc func(key []byte) []byte

// KeyPairFunc generates a fresh (key, secretKey) pair for a feed opened
// without an explicit key. Also out of scope for the core (spec §1); the
// default wiring in internal/runtime uses internal/logengine's Ed25519
// generator.
type KeyPairFunc func() (key, secretKey []byte, err error)
