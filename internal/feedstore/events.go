package feedstore

import "sync"

// emitter is a minimal typed observer list, replacing the reference
// implementation's generic event emitter with the explicit
// per-signal observer pattern spec §9 calls for. Registration returns an
// unregister function; Emit dispatches synchronously to a snapshot of the
// currently registered callbacks (spec §5: "callbacks on feed/closed
// dispatch synchronously").
type emitter[T any] struct {
	mu        sync.Mutex
	callbacks []func(T)
}

func (e *emitter[T]) On(cb func(T)) func() {
	e.mu.Lock()
	e.callbacks = append(e.callbacks, cb)
	idx := len(e.callbacks) - 1
	e.mu.Unlock()
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if idx < len(e.callbacks) {
			e.callbacks[idx] = nil
		}
	}
}

func (e *emitter[T]) Emit(v T) {
	e.mu.Lock()
	snapshot := make([]func(T), len(e.callbacks))
	copy(snapshot, e.callbacks)
	e.mu.Unlock()
	for _, cb := range snapshot {
		if cb != nil {
			cb(v)
		}
	}
}

// FeedEvent is the payload of the store's `feed` event (spec §6).
type FeedEvent struct {
	Handle     LogHandle
	Descriptor *FeedDescriptor
}

// AppendEvent is the payload of the store's forwarded `append` event.
type AppendEvent struct {
	Handle     LogHandle
	Descriptor *FeedDescriptor
	Seq        uint64
}

// DownloadEvent is the payload of the store's forwarded `download` event.
type DownloadEvent struct {
	Index      uint64
	Data       []byte
	Handle     LogHandle
	Descriptor *FeedDescriptor
}
