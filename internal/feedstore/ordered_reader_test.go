package feedstore_test

import (
	. "github.com/dxos-deprecated/feed-store/internal/feedstore"

	"context"
	"testing"
	"time"
)

func TestOrderedReaderFeedOrderIsFixedAttachmentOrder(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.OpenFeed(context.Background(), "/a", OpenOptions{}); err != nil {
		t.Fatalf("open a: %v", err)
	}
	if _, _, err := s.OpenFeed(context.Background(), "/b", OpenOptions{}); err != nil {
		t.Fatalf("open b: %v", err)
	}

	r := s.CreateOrderedReadStream(acceptAll)
	defer r.Destroy(nil)

	first := r.FeedOrderForTest()
	second := r.FeedOrderForTest()
	if len(first) != 2 || len(second) != 2 {
		t.Fatalf("expected 2 attached feeds in both snapshots, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("expected a stable feed order across passes, pass1=%v pass2=%v", first, second)
		}
	}
}

func TestOrderedReaderAdmitsAllWhenAlwaysTrue(t *testing.T) {
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
	if _, err := feedA.Append(context.Background(), []byte("a1")); err != nil {
		t.Fatalf("append a1: %v", err)
	}
	if _, err := feedB.Append(context.Background(), []byte("b0")); err != nil {
		t.Fatalf("append b0: %v", err)
	}

	r := s.CreateOrderedReadStream(acceptAll)
	defer r.Destroy(nil)

	messages := collectMessages(t, r.Messages(), 3, 2*time.Second)
	got := map[string]bool{}
	for _, m := range messages {
		got[string(m.Data)] = true
	}
	for _, want := range []string{"a0", "a1", "b0"} {
		if !got[want] {
			t.Fatalf("expected %s among admitted messages, got %v", want, messages)
		}
	}
}

func TestOrderedReaderNeverSkipsRejectedHead(t *testing.T) {
	s := newTestStore(t)
	feed, _, err := s.OpenFeed(context.Background(), "/a", OpenOptions{})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	predicate := func(_ context.Context, _ *FeedDescriptor, msg Message) (bool, error) {
		return msg.Seq != 1, nil
	}
	r := s.CreateOrderedReadStream(predicate)
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

func TestOrderedReaderDestroyUnregistersFromStore(t *testing.T) {
	s := newTestStore(t)
	r := s.CreateOrderedReadStream(acceptAll)
	r.Destroy(nil)

	select {
	case <-r.Done():
	case <-time.After(time.Second):
		t.Fatal("expected Done() to close after Destroy")
	}

	stillRegistered := s.HasReaderForTest(r)
	if stillRegistered {
		t.Fatal("expected the reader to be unregistered after Destroy")
	}
}
