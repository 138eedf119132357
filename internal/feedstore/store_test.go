package feedstore_test

import (
	. "github.com/dxos-deprecated/feed-store/internal/feedstore"

	"context"
	"testing"
	"time"

	"github.com/dxos-deprecated/feed-store/internal/blockstore/memstore"
	"github.com/dxos-deprecated/feed-store/internal/codec"
	"github.com/dxos-deprecated/feed-store/internal/ferrors"
	"github.com/dxos-deprecated/feed-store/internal/logengine"
	"github.com/dxos-deprecated/feed-store/internal/triekv/memtrie"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := New(Options{
		Storage:         memstore.New(),
		TrieFactory:     memtrie.New(),
		IndexTrieName:   "index",
		Engine:          logengine.New(),
		DiscoveryKeyFn:  logengine.DiscoveryKey,
		KeyPairFn:       logengine.GenerateKeyPair,
		Codecs:          codec.NewRegistry(),
		IndexNamespace:  "@feedstore/",
		OpenTimeout:     time.Second,
		CloseTimeout:    time.Second,
		DefaultEncoding: "binary",
		DefaultBatch:    100,
	})
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return s
}

func TestStoreInitializeIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("second initialize: %v", err)
	}
	if s.State() != StateOpened {
		t.Fatalf("expected opened, got %v", s.State())
	}
}

func TestOpenFeedCreatesAndPersists(t *testing.T) {
	s := newTestStore(t)
	feed, d, err := s.OpenFeed(context.Background(), "/orders", OpenOptions{})
	if err != nil {
		t.Fatalf("open feed: %v", err)
	}
	if d.Path() != "/orders" {
		t.Fatalf("expected path /orders, got %s", d.Path())
	}
	if feed.Length() != 0 {
		t.Fatalf("expected empty feed, got length %d", feed.Length())
	}

	rec, ok, err := s.IndexDBForTest().Get(HexKey(d.Key()))
	if err != nil || !ok {
		t.Fatalf("expected the record persisted: ok=%v err=%v", ok, err)
	}
	if rec.Path != "/orders" {
		t.Fatalf("expected persisted path /orders, got %s", rec.Path)
	}
}

func TestOpenFeedSamePathTwiceReturnsSameDescriptor(t *testing.T) {
	s := newTestStore(t)
	_, d1, err := s.OpenFeed(context.Background(), "/orders", OpenOptions{})
	if err != nil {
		t.Fatalf("open 1: %v", err)
	}
	_, d2, err := s.OpenFeed(context.Background(), "/orders", OpenOptions{})
	if err != nil {
		t.Fatalf("open 2: %v", err)
	}
	if d1 != d2 {
		t.Fatal("expected the same descriptor for the same path")
	}
}

func TestOpenFeedMismatchedKeyErrors(t *testing.T) {
	s := newTestStore(t)
	_, d1, err := s.OpenFeed(context.Background(), "/orders", OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	otherKey, _, err := logengine.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	_, _, err = s.OpenFeed(context.Background(), "/orders", OpenOptions{Key: otherKey})
	if ferrors.KindOf(err) != ferrors.KeyMismatch {
		t.Fatalf("expected KeyMismatch, got %v", err)
	}
	_ = d1
}

func TestOpenFeedDuplicateKeyDifferentPathErrors(t *testing.T) {
	s := newTestStore(t)
	key, secretKey, err := logengine.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if _, _, err := s.OpenFeed(context.Background(), "/a", OpenOptions{Key: key, SecretKey: secretKey}); err != nil {
		t.Fatalf("open /a: %v", err)
	}
	_, _, err = s.OpenFeed(context.Background(), "/b", OpenOptions{Key: key, SecretKey: secretKey})
	if ferrors.KindOf(err) != ferrors.DuplicateKey {
		t.Fatalf("expected DuplicateKey, got %v", err)
	}
}

func TestOpenFeedEmptyPathErrors(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.OpenFeed(context.Background(), "", OpenOptions{}); ferrors.KindOf(err) != ferrors.MissingPath {
		t.Fatalf("expected MissingPath, got %v", err)
	}
}

func TestFeedEventFiresExactlyOncePerOpen(t *testing.T) {
	s := newTestStore(t)
	count := 0
	s.OnFeed(func(FeedEvent) { count++ })

	if _, _, err := s.OpenFeed(context.Background(), "/orders", OpenOptions{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, _, err := s.OpenFeed(context.Background(), "/orders", OpenOptions{}); err != nil {
		t.Fatalf("reopen (already open): %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly 1 feed event, got %d", count)
	}
}

func TestAppendEventForwardsFromFeed(t *testing.T) {
	s := newTestStore(t)
	feed, _, err := s.OpenFeed(context.Background(), "/orders", OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	var got AppendEvent
	s.OnAppend(func(e AppendEvent) { got = e })

	if _, err := feed.Append(context.Background(), []byte("x")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if got.Seq != 0 || got.Descriptor == nil {
		t.Fatalf("expected forwarded append event, got %+v", got)
	}
}

func TestCloseFeedThenReopenReusesDescriptor(t *testing.T) {
	s := newTestStore(t)
	feed, d, err := s.OpenFeed(context.Background(), "/orders", OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := feed.Append(context.Background(), []byte("x")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := s.CloseFeed(context.Background(), "/orders"); err != nil {
		t.Fatalf("close: %v", err)
	}
	if d.State() != StateClosed {
		t.Fatalf("expected closed, got %v", d.State())
	}

	feed2, d2, err := s.OpenFeed(context.Background(), "/orders", OpenOptions{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if d2 != d {
		t.Fatal("expected the same descriptor to be reused")
	}
	if feed2.Length() != 1 {
		t.Fatalf("expected the reopened feed to keep its data, got length %d", feed2.Length())
	}
}

func TestDeleteDescriptorRemovesFromIndexAndLookups(t *testing.T) {
	s := newTestStore(t)
	_, d, err := s.OpenFeed(context.Background(), "/orders", OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	removed := false
	s.OnDescriptorRemove(func(*FeedDescriptor) { removed = true })

	if err := s.DeleteDescriptor(context.Background(), "/orders"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !removed {
		t.Fatal("expected onDescriptorRemove to fire")
	}
	if _, ok := s.GetDescriptorByPath("/orders"); ok {
		t.Fatal("expected descriptor gone from byPath")
	}
	if _, ok := s.GetDescriptorByDiscoveryKey(d.DiscoveryKey()); ok {
		t.Fatal("expected descriptor gone from byDiscovery")
	}
	if _, ok, err := s.IndexDBForTest().Get(HexKey(d.Key())); err != nil || ok {
		t.Fatalf("expected index record gone, ok=%v err=%v", ok, err)
	}
}

func TestInitializeReloadsPersistedDescriptorsAcrossInstances(t *testing.T) {
	storage := memstore.New()
	trieFactory := memtrie.New()

	build := func() *Store {
		return New(Options{
			Storage:         storage,
			TrieFactory:     trieFactory,
			IndexTrieName:   "index",
			Engine:          logengine.New(),
			DiscoveryKeyFn:  logengine.DiscoveryKey,
			KeyPairFn:       logengine.GenerateKeyPair,
			Codecs:          codec.NewRegistry(),
			IndexNamespace:  "@feedstore/",
			OpenTimeout:     time.Second,
			CloseTimeout:    time.Second,
			DefaultEncoding: "binary",
			DefaultBatch:    100,
		})
	}

	s1 := build()
	if err := s1.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize 1: %v", err)
	}
	if _, _, err := s1.OpenFeed(context.Background(), "/orders", OpenOptions{}); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s1.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2 := build()
	if err := s2.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize 2: %v", err)
	}
	d, ok := s2.GetDescriptorByPath("/orders")
	if !ok {
		t.Fatal("expected the descriptor to reload from the index")
	}
	if d.State() != StateClosed {
		t.Fatalf("expected reloaded descriptors closed until opened, got %v", d.State())
	}
}

func TestStoreOperationsFailWhenClosed(t *testing.T) {
	s := New(Options{
		Storage:         memstore.New(),
		TrieFactory:     memtrie.New(),
		IndexTrieName:   "index",
		Engine:          logengine.New(),
		DiscoveryKeyFn:  logengine.DiscoveryKey,
		KeyPairFn:       logengine.GenerateKeyPair,
		Codecs:          codec.NewRegistry(),
		IndexNamespace:  "@feedstore/",
		DefaultEncoding: "binary",
		DefaultBatch:    100,
	})
	if _, _, err := s.OpenFeed(context.Background(), "/orders", OpenOptions{}); ferrors.KindOf(err) != ferrors.Closed {
		t.Fatalf("expected Closed, got %v", err)
	}
}
