package datalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// ErrLockBusy is returned when the write lock cannot be acquired before
// the timeout elapses.
var ErrLockBusy = errors.New("datalog: lock busy")

// LockTimeout is the default time WithWriteLock waits before giving up,
// matching spec §7's "retry with backoff up to ~1s".
const LockTimeout = time.Second

// WithWriteLock executes fn while holding an exclusive advisory lock on
// dir's companion ".lock" file. All mutating log operations (append,
// append-tombstone, compact) must run inside this, composed by the write
// coordinator around the full append-then-rebuild pipeline.
//
// The lock file lives alongside the log rather than inside it, so taking
// the lock never touches the log's own mtime.
func WithWriteLock(ctx context.Context, dir string, fn func() error) error {
	lockPath := filepath.Join(dir, ".lock")

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("%w: opening lock file: %w", ErrIO, err)
	}
	defer func() { _ = file.Close() }()

	if err := flockWithBackoff(ctx, int(file.Fd()), LockTimeout); err != nil {
		return err
	}
	defer func() { _ = unix.Flock(int(file.Fd()), unix.LOCK_UN) }()

	return fn()
}

// flockWithBackoff tries LOCK_EX with exponential backoff up to timeout,
// so a contended lock surfaces as ErrLockBusy rather than blocking forever.
func flockWithBackoff(ctx context.Context, fd int, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	backoff := time.Millisecond

	for {
		err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return nil
		}

		if !errors.Is(err, unix.EWOULDBLOCK) && !errors.Is(err, unix.EAGAIN) {
			return fmt.Errorf("%w: flock: %w", ErrIO, err)
		}

		if time.Now().After(deadline) {
			return ErrLockBusy
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > 50*time.Millisecond {
			backoff = 50 * time.Millisecond
		}
	}
}
