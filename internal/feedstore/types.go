package feedstore

import (
	"context"
	"encoding/hex"
)

// Predicate classifies a single message from a feed as admissible or not,
// used by the Selective and Ordered readers (spec §4.6, §4.7). A returned
// error aborts only the owning reader (spec §7's ReaderFailed).
type Predicate func(ctx context.Context, d *FeedDescriptor, msg Message) (bool, error)

// State is a FeedDescriptor's or FeedStore's lifecycle state (spec §3, §4.4).
type State int

const (
	StateClosed State = iota
	StateOpening
	StateOpened
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpened:
		return "opened"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// WatchEvent identifies which of a FeedDescriptor's transitions fired a
// watcher callback (spec §4.2).
type WatchEvent int

const (
	WatchOpened WatchEvent = iota
	WatchUpdated
	WatchClosed
)

// Watcher receives a descriptor's lifecycle and metadata transitions.
type Watcher func(evt WatchEvent, d *FeedDescriptor)

// Record is the persistable shape of a FeedDescriptor (spec §3's "IndexDB
// record"): everything needed to reopen a feed across process restarts.
type Record struct {
	Path          string      `json:"path"`
	Key           []byte      `json:"key"`
	SecretKey     []byte      `json:"secretKey,omitempty"`
	ValueEncoding string      `json:"valueEncoding"`
	Metadata      interface{} `json:"metadata,omitempty"`
}

// HexKey returns the lowercase hex encoding of key, used both as the
// IndexDB key suffix and as the blockstore rooting prefix (spec §3, §4.2).
func HexKey(key []byte) string { return hex.EncodeToString(key) }

// OpenOptions parameterizes FeedStore.OpenFeed (spec §4.4).
type OpenOptions struct {
	Key           []byte
	SecretKey     []byte
	ValueEncoding string
	Metadata      interface{}
}

// Message is one record delivered by a reader: either a raw block or, when
// FeedStoreInfo is requested, the enriched shape of spec §4.5.
type Message struct {
	Data     []byte
	Seq      uint64
	Sync     bool
	Key      []byte
	Path     string
	Metadata interface{}
}
