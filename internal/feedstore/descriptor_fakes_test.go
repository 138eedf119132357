package feedstore_test

import (
	. "github.com/dxos-deprecated/feed-store/internal/feedstore"

	"context"
	"errors"
)

// erroringFactory always fails Open, simulating a log-engine that throws
// during construction (spec §8's boundary property).
type erroringFactory struct {
	err error
}

func (f erroringFactory) Open(storage Storage, key []byte, opts LogEngineOpenOptions) (LogHandle, error) {
	return nil, f.err
}

// blockingReadyHandle never becomes ready, simulating a log-engine whose
// asynchronous initialization hangs past the descriptor's open timeout
// (spec §5's "timeout on open").
type blockingReadyHandle struct{}

func (blockingReadyHandle) Ready(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (blockingReadyHandle) Close(ctx context.Context) error { return nil }
func (blockingReadyHandle) Append(ctx context.Context, data []byte) (uint64, error) {
	return 0, errors.New("blockingReadyHandle: append not supported")
}
func (blockingReadyHandle) Get(ctx context.Context, seq uint64) ([]byte, error) {
	return nil, errors.New("blockingReadyHandle: get not supported")
}
func (blockingReadyHandle) GetBatch(ctx context.Context, start, end uint64) ([]Block, error) {
	return nil, errors.New("blockingReadyHandle: getbatch not supported")
}
func (blockingReadyHandle) CreateReadStream(opts ReadStreamOptions) BlockReader { return nil }
func (blockingReadyHandle) Download(ctx context.Context, start, end uint64) error {
	return nil
}
func (blockingReadyHandle) Length() uint64               { return 0 }
func (blockingReadyHandle) Opened() bool                 { return false }
func (blockingReadyHandle) Closed() bool                 { return false }
func (blockingReadyHandle) OnAppend(func(uint64)) func() { return func() {} }
func (blockingReadyHandle) OnDownload(func(uint64, []byte)) func() {
	return func() {}
}

type blockingReadyFactory struct{}

func (blockingReadyFactory) Open(storage Storage, key []byte, opts LogEngineOpenOptions) (LogHandle, error) {
	return blockingReadyHandle{}, nil
}

// blockingCloseHandle opens instantly but never returns from Close,
// simulating a log-engine that hangs past the descriptor's close timeout
// (spec §5's "timeout on close").
type blockingCloseHandle struct{}

func (blockingCloseHandle) Ready(ctx context.Context) error { return nil }
func (blockingCloseHandle) Close(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (blockingCloseHandle) Append(ctx context.Context, data []byte) (uint64, error) {
	return 0, errors.New("blockingCloseHandle: append not supported")
}
func (blockingCloseHandle) Get(ctx context.Context, seq uint64) ([]byte, error) {
	return nil, errors.New("blockingCloseHandle: get not supported")
}
func (blockingCloseHandle) GetBatch(ctx context.Context, start, end uint64) ([]Block, error) {
	return nil, errors.New("blockingCloseHandle: getbatch not supported")
}
func (blockingCloseHandle) CreateReadStream(opts ReadStreamOptions) BlockReader { return nil }
func (blockingCloseHandle) Download(ctx context.Context, start, end uint64) error {
	return nil
}
func (blockingCloseHandle) Length() uint64               { return 0 }
func (blockingCloseHandle) Opened() bool                 { return true }
func (blockingCloseHandle) Closed() bool                 { return false }
func (blockingCloseHandle) OnAppend(func(uint64)) func() { return func() {} }
func (blockingCloseHandle) OnDownload(func(uint64, []byte)) func() {
	return func() {}
}

type blockingCloseFactory struct{}

func (blockingCloseFactory) Open(storage Storage, key []byte, opts LogEngineOpenOptions) (LogHandle, error) {
	return blockingCloseHandle{}, nil
}
