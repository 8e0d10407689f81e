package rowlock

import "errors"

var (
	// ErrTimeout is returned by Acquire when ctx is done before the lock becomes available.
	ErrTimeout = errors.New("rowlock: timed out waiting for lock")
	// ErrLocked is returned by TryAcquire when another holder currently owns the key.
	ErrLocked = errors.New("rowlock: key is locked by another holder")
)
