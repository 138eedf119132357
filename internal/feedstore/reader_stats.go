package feedstore

// ReaderStats is a point-in-time snapshot of a reader's admission counters,
// exposed by every reader family (spec §9's supplemental observability) and
// surfaced by the `tail --stats` CLI flag.
type ReaderStats struct {
	// Attached is the number of feeds currently attached to the reader.
	Attached uint64
	// Admitted is the total number of messages emitted on Messages().
	Admitted uint64
	// Rejected is the total number of predicate evaluations that returned
	// false. Bulk readers have no predicate and always report zero.
	Rejected uint64
	// Synced is the number of feeds that have reached their sync watermark.
	// Only meaningful for BulkReader; admission readers report zero.
	Synced uint64
}
