package logengine

import (
	"context"
	"sync"

	"github.com/dxos-deprecated/feed-store/internal/blockstore"
	"github.com/dxos-deprecated/feed-store/internal/feedstore"
	"github.com/dxos-deprecated/feed-store/internal/ferrors"
)

const (
	logContainerName = "log"
	idxContainerName = "index"
	idxEntrySize     = 16 // offset(8 BE) | length(8 BE), one per appended block
)

// Factory is the default feedstore.LogEngineFactory: an append-only block
// log over two named blockstore containers ("log" holds framed block data,
// "index" holds one fixed-size offset/length entry per block), grounded on
// internal/eventlog's mutex + notify-channel append discipline but adapted
// to the injected blockstore.Factory instead of talking to pebble directly.
type Factory struct{}

// New returns the default log-engine factory.
func New() *Factory { return &Factory{} }

var _ feedstore.LogEngineFactory = (*Factory)(nil)

func (f *Factory) Open(storage feedstore.Storage, key []byte, opts feedstore.LogEngineOpenOptions) (feedstore.LogHandle, error) {
	log, err := storage.Open(logContainerName)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.StorageFailure, "open log container", err)
	}
	idx, err := storage.Open(idxContainerName)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.StorageFailure, "open index container", err)
	}
	return &Handle{
		key:           append([]byte(nil), key...),
		secretKey:     append([]byte(nil), opts.SecretKey...),
		valueEncoding: opts.ValueEncoding,
		log:           log,
		idx:           idx,
		notify:        make(chan struct{}),
	}, nil
}

// Handle is the default feedstore.LogHandle.
type Handle struct {
	key, secretKey []byte
	valueEncoding  string

	log blockstore.Handle
	idx blockstore.Handle

	mu      sync.Mutex
	ready   bool
	closed  bool
	length  uint64
	logEnd  int64

	notifyMu sync.Mutex
	notify   chan struct{}

	appendCbs   callbackList[uint64]
	downloadCbs callbackList[downloadEvent]
}

type downloadEvent struct {
	Seq  uint64
	Data []byte
}

var _ feedstore.LogHandle = (*Handle)(nil)

// Ready loads the current length from the index container's size, mirroring
// internal/eventlog's log.go loading lastSeq from its metadata on open.
func (h *Handle) Ready(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ready {
		return nil
	}
	idxLen, err := h.idx.Stat()
	if err != nil {
		return ferrors.Wrap(ferrors.StorageFailure, "stat index", err)
	}
	logLen, err := h.log.Stat()
	if err != nil {
		return ferrors.Wrap(ferrors.StorageFailure, "stat log", err)
	}
	h.length = uint64(idxLen) / idxEntrySize
	h.logEnd = logLen
	h.ready = true
	return nil
}

func (h *Handle) Close(ctx context.Context) error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	err1 := h.log.Close()
	err2 := h.idx.Close()
	if err1 != nil {
		return ferrors.Wrap(ferrors.StorageFailure, "close log", err1)
	}
	if err2 != nil {
		return ferrors.Wrap(ferrors.StorageFailure, "close index", err2)
	}
	return nil
}

// Append writes data at the end of the log container, records its
// offset/length in the index container, and wakes anyone blocked in
// CreateReadStream (spec §4.8's live tail), matching internal/eventlog's
// blocking.go WaitForAppend pattern.
func (h *Handle) Append(ctx context.Context, data []byte) (uint64, error) {
	if len(h.secretKey) == 0 {
		return 0, ferrors.New(ferrors.BadSecretKey, "Append", "log has no secret key")
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return 0, ferrors.New(ferrors.Closed, "Append", "log is closed")
	}
	seq := h.length
	offset := h.logEnd
	encoded := encodeBlock(data)
	h.mu.Unlock()

	if _, err := h.log.WriteAt(encoded, offset); err != nil {
		return 0, ferrors.Wrap(ferrors.StorageFailure, "write block", err)
	}

	var idxEntry [idxEntrySize]byte
	putUint64BE(idxEntry[0:8], uint64(offset))
	putUint64BE(idxEntry[8:16], uint64(len(encoded)))
	if _, err := h.idx.WriteAt(idxEntry[:], int64(seq)*idxEntrySize); err != nil {
		return 0, ferrors.Wrap(ferrors.StorageFailure, "write index entry", err)
	}

	h.mu.Lock()
	h.logEnd += int64(len(encoded))
	h.length = seq + 1
	h.mu.Unlock()

	h.wake()
	h.appendCbs.emit(seq)
	return seq, nil
}

func (h *Handle) Get(ctx context.Context, seq uint64) ([]byte, error) {
	h.mu.Lock()
	if seq >= h.length {
		h.mu.Unlock()
		return nil, ferrors.New(ferrors.SeqOutOfRange, "Get", "seq out of range")
	}
	h.mu.Unlock()

	var idxEntry [idxEntrySize]byte
	if _, err := h.idx.ReadAt(idxEntry[:], int64(seq)*idxEntrySize); err != nil {
		return nil, ferrors.Wrap(ferrors.StorageFailure, "read index entry", err)
	}
	offset := int64(getUint64BE(idxEntry[0:8]))
	length := int64(getUint64BE(idxEntry[8:16]))

	buf := make([]byte, length)
	if _, err := h.log.ReadAt(buf, offset); err != nil {
		return nil, ferrors.Wrap(ferrors.StorageFailure, "read block", err)
	}
	data, ok := decodeBlock(buf)
	if !ok {
		return nil, ferrors.New(ferrors.Corrupt, "Get", "block checksum mismatch")
	}
	return data, nil
}

func (h *Handle) GetBatch(ctx context.Context, start, end uint64) ([]feedstore.Block, error) {
	if end < start {
		return nil, ferrors.New(ferrors.InvalidRange, "GetBatch", "end before start")
	}
	out := make([]feedstore.Block, 0, end-start)
	for seq := start; seq < end; seq++ {
		data, err := h.Get(ctx, seq)
		if err != nil {
			return nil, err
		}
		out = append(out, feedstore.Block{Seq: seq, Data: data})
	}
	return out, nil
}

func (h *Handle) CreateReadStream(opts feedstore.ReadStreamOptions) feedstore.BlockReader {
	r := &blockReader{h: h, next: opts.Start, live: opts.Live, closed: make(chan struct{})}
	if opts.End != 0 {
		r.end = opts.End
		r.bounded = true
	} else if !opts.Live {
		r.end = h.Length()
		r.bounded = true
	}
	return r
}

// Download is a no-op: the default engine has no peers to replicate from
// (spec §1 puts the download protocol itself out of scope).
func (h *Handle) Download(ctx context.Context, start, end uint64) error { return nil }

func (h *Handle) Length() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.length
}

func (h *Handle) Opened() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready && !h.closed
}

func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Handle) OnAppend(fn func(seq uint64)) func() { return h.appendCbs.on(fn) }

func (h *Handle) OnDownload(fn func(seq uint64, data []byte)) func() {
	return h.downloadCbs.on(func(e downloadEvent) { fn(e.Seq, e.Data) })
}

// wake closes and replaces the notify channel, releasing every waiter
// blocked in blockReader.Next, in the style of internal/eventlog's
// blocking.go WaitForAppend.
func (h *Handle) wake() {
	h.notifyMu.Lock()
	close(h.notify)
	h.notify = make(chan struct{})
	h.notifyMu.Unlock()
}

func (h *Handle) waitCh() chan struct{} {
	h.notifyMu.Lock()
	defer h.notifyMu.Unlock()
	return h.notify
}

func putUint64BE(b []byte, v uint64) {
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func getUint64BE(b []byte) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v = v<<8 | uint64(b[i])
	}
	return v
}
