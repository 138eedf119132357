// Package asyncmutex implements the async mutex primitive of spec §4.1: a
// single acquire operation that suspends the caller until the mutex is
// free and returns an explicit release handle, rather than a scoped
// lock/unlock pair. The store needs this because a release can legitimately
// happen from a different point in the call graph than the acquire (for
// example, after a descriptor's open() has fired its watchers).
//
// Waiters are served FIFO. The returned release handle is single-use;
// invoking it twice panics, matching spec §4.1's "programming error"
// framing for double release.
package asyncmutex

import (
	"context"
	"sync"
)

// Release, when invoked, hands the mutex to the next FIFO waiter (or marks
// it free). It is safe to call from any goroutine, and must be called
// exactly once.
type Release func()

// Mutex is a FIFO async mutex yielding an explicit Release handle.
type Mutex struct {
	mu      sync.Mutex
	waiters []chan struct{}
	held    bool
}

// New constructs a free Mutex.
func New() *Mutex { return &Mutex{} }

// Acquire blocks until the mutex is free (or ctx is done) and returns a
// Release handle. Waiters are granted the mutex in FIFO order.
func (m *Mutex) Acquire(ctx context.Context) (Release, error) {
	m.mu.Lock()
	if !m.held {
		m.held = true
		m.mu.Unlock()
		return m.release(), nil
	}
	ch := make(chan struct{})
	m.waiters = append(m.waiters, ch)
	m.mu.Unlock()

	select {
	case <-ch:
		return m.release(), nil
	case <-ctx.Done():
		// Best-effort removal from the waiter queue; if we were already
		// woken concurrently with cancellation, hand the mutex on instead
		// of leaking it.
		m.mu.Lock()
		for i, w := range m.waiters {
			if w == ch {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				m.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		m.mu.Unlock()
		select {
		case <-ch:
			return m.release(), nil
		default:
			return nil, ctx.Err()
		}
	}
}

func (m *Mutex) release() Release {
	var released bool
	return func() {
		if released {
			panic("asyncmutex: release called twice")
		}
		released = true
		m.mu.Lock()
		if len(m.waiters) == 0 {
			m.held = false
			m.mu.Unlock()
			return
		}
		next := m.waiters[0]
		m.waiters = m.waiters[1:]
		m.mu.Unlock()
		close(next)
	}
}

// TryAcquire attempts to acquire the mutex without blocking. It returns
// (nil, false) if the mutex is currently held.
func (m *Mutex) TryAcquire() (Release, bool) {
	m.mu.Lock()
	if m.held {
		m.mu.Unlock()
		return nil, false
	}
	m.held = true
	m.mu.Unlock()
	return m.release(), true
}
