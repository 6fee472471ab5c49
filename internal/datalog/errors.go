package datalog

import "errors"

// Sentinel errors for the data log. Callers use errors.Is to check kind.
var (
	// ErrCorruptLog reports a record that cannot be framed. A bad magic is
	// not surfaced as a hard failure: the log is treated as empty per
	// spec §7, and a truncated trailing record is dropped silently.
	// IterLive returns ErrCorruptLog for a record whose kind byte is
	// neither an entry nor a tombstone; AppendEntry also returns it for a
	// topic longer than record.MaxTopicLen.
	ErrCorruptLog = errors.New("datalog: corrupt log")

	// ErrIO wraps any underlying read/write/fsync/rename failure.
	ErrIO = errors.New("datalog: io error")

	// ErrOffsetNotFound is returned by AppendTombstone for a target offset
	// that does not fit the tombstone's u32 field. It does not check that
	// the target is a live entry's start.
	ErrOffsetNotFound = errors.New("datalog: offset not found")
)
