package feedstore

// SelectiveReader is the per-message admission reader of spec §4.6: for
// each attached feed it drains admissible messages off the head of that
// feed's buffer, leaving a rejected message in place and moving on to the
// next feed, with no ordering guarantee across feeds (spec §5).
type SelectiveReader struct {
	*admissionEngine
}

var _ readStream = (*SelectiveReader)(nil)

// CreateSelectiveReadStream instantiates a SelectiveReader driven by
// predicate, attaches it to every currently opened feed, and subscribes it
// to future `feed` events.
func (s *Store) CreateSelectiveReadStream(predicate Predicate) *SelectiveReader {
	e := newAdmissionEngine(s, predicate, s.defaultBatch)
	r := &SelectiveReader{admissionEngine: e}
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

// feedOrder returns the attached feeds in unspecified (map) order: the
// Selective reader makes no ordering promise across feeds (spec §5).
func (r *SelectiveReader) feedOrder() []*feedBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*feedBuffer, 0, len(r.feeds))
	for _, fb := range r.feeds {
		out = append(out, fb)
	}
	return out
}

// ID returns a sortable, process-unique identifier for this reader,
// useful for correlating log lines and Stats() output across readers.
func (r *SelectiveReader) ID() string { return r.admissionEngine.id.String() }

// Messages is the reader's output stream.
func (r *SelectiveReader) Messages() <-chan Message { return r.out }

// Done is closed when the reader is destroyed.
func (r *SelectiveReader) Done() <-chan struct{} { return r.closed }

// Err returns the error Destroy was called with, if any.
func (r *SelectiveReader) Err() error {
	select {
	case err := <-r.errCh:
		return err
	default:
		return nil
	}
}

// Destroy ends the reader's output stream and detaches it from the store.
func (r *SelectiveReader) Destroy(err error) { r.admissionEngine.destroy(err) }

// Stats reports the reader's current admission counters (spec §9).
func (r *SelectiveReader) Stats() ReaderStats { return r.admissionEngine.stats() }
