package feedstore_test

import (
	. "github.com/dxos-deprecated/feed-store/internal/feedstore"

	"context"
	"io"
	"testing"
	"time"

	"github.com/dxos-deprecated/feed-store/internal/blockstore/memstore"
	"github.com/dxos-deprecated/feed-store/internal/logengine"
)

func newTestHandle(t *testing.T) LogHandle {
	t.Helper()
	key, sk, err := logengine.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key pair: %v", err)
	}
	h, err := logengine.New().Open(memstore.New(), key, LogEngineOpenOptions{SecretKey: sk})
	if err != nil {
		t.Fatalf("open handle: %v", err)
	}
	if err := h.Ready(context.Background()); err != nil {
		t.Fatalf("ready: %v", err)
	}
	return h
}

func appendN(t *testing.T, h LogHandle, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if _, err := h.Append(context.Background(), []byte{byte(i)}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
}

func TestBatchStreamBoundedReadsAllThenEOF(t *testing.T) {
	h := newTestHandle(t)
	appendN(t, h, 5)

	bs := NewBatchStream(h, []byte("key"), "/p", BatchStreamOptions{BatchSize: 2})
	var total int
	for {
		batch, err := bs.Next(context.Background())
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		total += len(batch)
	}
	if total != 5 {
		t.Fatalf("expected 5 messages total, got %d", total)
	}
}

func TestBatchStreamMarksSyncOnSnapshotCrossing(t *testing.T) {
	h := newTestHandle(t)
	appendN(t, h, 3) // snapshot head = 3

	bs := NewBatchStream(h, []byte("key"), "/p", BatchStreamOptions{BatchSize: 100, Live: true})
	batch, err := bs.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(batch) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(batch))
	}
	if !batch[2].Sync {
		t.Fatalf("expected the message at the snapshot boundary to carry Sync=true")
	}
	for i := 0; i < 2; i++ {
		if batch[i].Sync {
			t.Fatalf("message %d should not be marked Sync", i)
		}
	}
}

func TestBatchStreamLiveBlocksThenDelivers(t *testing.T) {
	h := newTestHandle(t)
	bs := NewBatchStream(h, []byte("key"), "/p", BatchStreamOptions{Live: true, BatchSize: 10})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	resultCh := make(chan Batch, 1)
	errCh := make(chan error, 1)
	go func() {
		batch, err := bs.Next(ctx)
		if err != nil {
			errCh <- err
			return
		}
		resultCh <- batch
	}()

	time.Sleep(20 * time.Millisecond)
	appendN(t, h, 1)

	select {
	case batch := <-resultCh:
		if len(batch) != 1 {
			t.Fatalf("expected 1 message, got %d", len(batch))
		}
	case err := <-errCh:
		t.Fatalf("next errored: %v", err)
	case <-ctx.Done():
		t.Fatal("timed out waiting for live batch")
	}
}

func TestBatchStreamTailStartsAtCurrentHead(t *testing.T) {
	h := newTestHandle(t)
	appendN(t, h, 3)

	bs := NewBatchStream(h, []byte("key"), "/p", BatchStreamOptions{Tail: true, Live: true, BatchSize: 10})
	appendN(t, h, 2)

	batch, err := bs.Next(context.Background())
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if len(batch) != 2 || batch[0].Seq != 3 {
		t.Fatalf("expected 2 messages starting at seq 3, got %+v", batch)
	}
}
