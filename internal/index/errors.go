// Package index implements the rebuilt-from-scratch binary inverted index:
// the builder (spec §4.E) and the mmap zero-copy reader (spec §4.F).
package index

import "errors"

var (
	// ErrCorruptIndex reports a bad magic, version mismatch, or
	// out-of-bounds offset. Per spec §7 this is never surfaced to the
	// caller directly — the coordinator catches it and rebuilds.
	ErrCorruptIndex = errors.New("index: corrupt")

	// ErrTooManyEntries reports a snapshot with more live entries than the
	// u16 entry-id space allows. Compaction does not help (compaction only
	// removes tombstoned entries); the caller must reduce corpus size.
	ErrTooManyEntries = errors.New("index: too many entries for u16 id space")

	// ErrClosed names the closed-reader condition. No Reader method returns
	// it: after Close, TermPostings reports every term as missing, and the
	// other accessors do not check for a closed reader.
	ErrClosed = errors.New("index: reader closed")
)
