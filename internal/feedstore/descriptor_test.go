package feedstore_test

import (
	. "github.com/dxos-deprecated/feed-store/internal/feedstore"

	"context"
	"testing"
	"time"

	"github.com/dxos-deprecated/feed-store/internal/blockstore/memstore"
	"github.com/dxos-deprecated/feed-store/internal/logengine"
)

func newTestDescriptor(t *testing.T) (*FeedDescriptor, []byte) {
	t.Helper()
	key, sk, err := logengine.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	discoveryKey := logengine.DiscoveryKey(key)
	d := NewFeedDescriptor(logengine.New(), memstore.New(), time.Second, time.Second, "/p", key, sk, discoveryKey, "binary", nil)
	return d, key
}

func TestDescriptorStartsClosed(t *testing.T) {
	d, _ := newTestDescriptor(t)
	if d.State() != StateClosed {
		t.Fatalf("expected closed, got %v", d.State())
	}
	if d.Feed() != nil {
		t.Fatal("expected no feed handle before open")
	}
}

func TestDescriptorOpenTransitionsToOpened(t *testing.T) {
	d, _ := newTestDescriptor(t)
	feed, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if d.State() != StateOpened {
		t.Fatalf("expected opened, got %v", d.State())
	}
	if d.Feed() != feed {
		t.Fatal("expected Feed() to return the same handle Open returned")
	}
}

func TestDescriptorOpenIsIdempotent(t *testing.T) {
	d, _ := newTestDescriptor(t)
	feed1, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("open 1: %v", err)
	}
	feed2, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("open 2: %v", err)
	}
	if feed1 != feed2 {
		t.Fatal("expected the same handle across repeated Open calls")
	}
}

func TestDescriptorConcurrentOpenReturnsSameHandle(t *testing.T) {
	d, _ := newTestDescriptor(t)
	const n = 8
	results := make(chan interface{}, n)
	for i := 0; i < n; i++ {
		go func() {
			feed, err := d.Open(context.Background())
			if err != nil {
				results <- err
				return
			}
			results <- feed
		}()
	}
	first := <-results
	for i := 1; i < n; i++ {
		got := <-results
		if got != first {
			t.Fatalf("expected every concurrent Open to observe the same handle, got %v vs %v", got, first)
		}
	}
}

func TestDescriptorCloseIsNoOpWhenNotOpened(t *testing.T) {
	d, _ := newTestDescriptor(t)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close on unopened descriptor should be a no-op, got %v", err)
	}
}

func TestDescriptorCloseThenReopenGetsFreshHandle(t *testing.T) {
	d, _ := newTestDescriptor(t)
	feed1, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}
	if d.State() != StateClosed {
		t.Fatalf("expected closed, got %v", d.State())
	}
	feed2, err := d.Open(context.Background())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if feed1 == feed2 {
		t.Fatal("expected a distinct handle after close+reopen")
	}
}

func TestDescriptorWatchFiresOnOpenAndClose(t *testing.T) {
	d, _ := newTestDescriptor(t)
	var events []WatchEvent
	d.Watch(func(evt WatchEvent, _ *FeedDescriptor) { events = append(events, evt) })

	if _, err := d.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("close: %v", err)
	}

	if len(events) != 2 || events[0] != WatchOpened || events[1] != WatchClosed {
		t.Fatalf("expected [opened closed], got %v", events)
	}
}

func TestDescriptorSetMetadataFiresUpdated(t *testing.T) {
	d, _ := newTestDescriptor(t)
	var got WatchEvent = -1
	d.Watch(func(evt WatchEvent, _ *FeedDescriptor) { got = evt })

	if err := d.SetMetadata(context.Background(), map[string]interface{}{"a": 1}); err != nil {
		t.Fatalf("set metadata: %v", err)
	}
	if got != WatchUpdated {
		t.Fatalf("expected WatchUpdated, got %v", got)
	}
	if d.Snapshot().Metadata.(map[string]interface{})["a"] != 1 {
		t.Fatalf("expected metadata to be applied, got %v", d.Snapshot().Metadata)
	}
}

func TestDescriptorUnwatchStopsFutureCallbacks(t *testing.T) {
	d, _ := newTestDescriptor(t)
	calls := 0
	unwatch := d.Watch(func(WatchEvent, *FeedDescriptor) { calls++ })
	unwatch()

	if _, err := d.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected 0 calls after unwatch, got %d", calls)
	}
}
