package feedstore

// OrderedReader is the strictly cross-feed-ordered reader of spec §4.7:
// like SelectiveReader it never admits past a rejected head-of-buffer
// message, but it additionally visits feeds in a fixed order every pass
// (their attachment order), giving the output stream a deterministic
// pass-by-pass interleaving.
type OrderedReader struct {
	*admissionEngine
}

var _ readStream = (*OrderedReader)(nil)

// CreateOrderedReadStream instantiates an OrderedReader driven by
// predicate, attaches it to every currently opened feed (in the store's
// unspecified map iteration order, which then becomes their fixed
// attachment order for every subsequent pass), and subscribes it to future
// `feed` events.
func (s *Store) CreateOrderedReadStream(predicate Predicate) *OrderedReader {
	e := newAdmissionEngine(s, predicate, s.defaultBatch)
	r := &OrderedReader{admissionEngine: e}
	e.feedOrder = r.feedOrder
	e.onDestroy = func() { s.unregisterReader(r) }

	if err := s.ensureServiceable(); err != nil {
		e.destroy(err)
		return r
	}
	for _, d := range s.attachReaderToExisting(r) {
		r.attach(d)
	}
	return r
}

// feedOrder returns the attached feeds in the fixed order they were first
// attached (spec §4.7: "insertion order of attachment").
func (r *OrderedReader) feedOrder() []*feedBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*feedBuffer, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.feeds[key])
	}
	return out
}

// ID returns a sortable, process-unique identifier for this reader,
// useful for correlating log lines and Stats() output across readers.
func (r *OrderedReader) ID() string { return r.admissionEngine.id.String() }

// Messages is the reader's output stream.
func (r *OrderedReader) Messages() <-chan Message { return r.out }

// Done is closed when the reader is destroyed.
func (r *OrderedReader) Done() <-chan struct{} { return r.closed }

// Err returns the error Destroy was called with, if any.
func (r *OrderedReader) Err() error {
	select {
	case err := <-r.errCh:
		return err
	default:
		return nil
	}
}

// Destroy ends the reader's output stream and detaches it from the store.
func (r *OrderedReader) Destroy(err error) { r.admissionEngine.destroy(err) }

// Stats reports the reader's current admission counters (spec §9).
func (r *OrderedReader) Stats() ReaderStats { return r.admissionEngine.stats() }
