package feedstore_test

import (
	. "github.com/dxos-deprecated/feed-store/internal/feedstore"

	"context"
	"errors"
	"testing"
	"time"
)

func acceptAll(context.Context, *FeedDescriptor, Message) (bool, error) { return true, nil }

func TestSelectiveReaderAdmitsAcrossFeedsUnordered(t *testing.T) {
	s := newTestStore(t)
	feedA, _, err := s.OpenFeed(context.Background(), "/a", OpenOptions{})
	if err != nil {
		t.Fatalf("open a: %v", err)
	}
	feedB, _, err := s.OpenFeed(context.Background(), "/b", OpenOptions{})
	if err != nil {
		t.Fatalf("open b: %v", err)
	}
	if _, err := feedA.Append(context.Background(), []byte("a0")); err != nil {
		t.Fatalf("append a0: %v", err)
	}
	if _, err := feedB.Append(context.Background(), []byte("b0")); err != nil {
		t.Fatalf("append b0: %v", err)
	}

	r := s.CreateSelectiveReadStream(acceptAll)
	defer r.Destroy(nil)

	messages := collectMessages(t, r.Messages(), 2, 2*time.Second)
	got := map[string]bool{}
	for _, m := range messages {
		got[string(m.Data)] = true
	}
	if !got["a0"] || !got["b0"] {
		t.Fatalf("expected both a0 and b0, got %v", messages)
	}
}

func TestSelectiveReaderNeverSkipsRejectedHead(t *testing.T) {
	s := newTestStore(t)
	feed, _, err := s.OpenFeed(context.Background(), "/a", OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Reject seq 1 forever; admit everything else.
	predicate := func(_ context.Context, _ *FeedDescriptor, msg Message) (bool, error) {
		return msg.Seq != 1, nil
	}
	r := s.CreateSelectiveReadStream(predicate)
	defer r.Destroy(nil)

	if _, err := feed.Append(context.Background(), []byte{0}); err != nil {
		t.Fatalf("append 0: %v", err)
	}
	if _, err := feed.Append(context.Background(), []byte{1}); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if _, err := feed.Append(context.Background(), []byte{2}); err != nil {
		t.Fatalf("append 2: %v", err)
	}

	// Only seq 0 should ever be delivered: seq 1 is stuck at the head of
	// the buffer forever, and seq 2 must not be admitted around it.
	messages := collectMessages(t, r.Messages(), 1, 500*time.Millisecond)
	if messages[0].Seq != 0 {
		t.Fatalf("expected seq 0 first, got %+v", messages[0])
	}

	select {
	case m := <-r.Messages():
		t.Fatalf("expected no further messages past the rejected head, got %+v", m)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestSelectiveReaderPredicateErrorDestroysAndUnregisters(t *testing.T) {
	s := newTestStore(t)
	feed, _, err := s.OpenFeed(context.Background(), "/a", OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	boom := errors.New("boom")
	predicate := func(context.Context, *FeedDescriptor, Message) (bool, error) {
		return false, boom
	}
	r := s.CreateSelectiveReadStream(predicate)

	if _, err := feed.Append(context.Background(), []byte{0}); err != nil {
		t.Fatalf("append: %v", err)
	}

	select {
	case <-r.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("expected the reader to be destroyed after a predicate error")
	}
	if r.Err() == nil {
		t.Fatal("expected Err() to report the predicate failure")
	}

	stillRegistered := s.HasReaderForTest(r)
	if stillRegistered {
		t.Fatal("expected the reader to be unregistered from the store after destroy")
	}
}
