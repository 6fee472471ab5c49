package engine

import "errors"

// Sentinel errors, matched by the RPC and CLI layers via errors.Is to pick
// an exit code / JSON-RPC error code (spec §7).
var (
	ErrNotFound     = errors.New("engine: not found")
	ErrInvalidInput = errors.New("engine: invalid input")

	// ErrIndexFull guards the u16 entry-id space: once the live entry count
	// reaches MaxEntriesBeforeCompaction, Store refuses rather than risk an
	// id overflow on the next rebuild.
	ErrIndexFull = errors.New("engine: index full")
)
