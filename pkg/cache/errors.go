package cache

import (
	"errors"

	"github.com/Joe-noh/concache/pkg/rowlock"
)

// ErrLocked/ErrTimeout are re-exported aliases of the rowlock package's sentinels so callers never
// need to import rowlock just to do an errors.Is check against a cache method.
var (
	// ErrLocked is returned by TryIsolated when another holder currently owns the key.
	ErrLocked = rowlock.ErrLocked
	// ErrTimeout is returned by Isolated (and the locking Put/Update/Delete paths) when the lock
	// doesn't become available before the caller's context is done.
	ErrTimeout = rowlock.ErrTimeout

	// ErrAlreadyExists is surfaced by InsertNew/InsertNewItem when the key is already present.
	ErrAlreadyExists = errors.New("cache: key already exists")
	// ErrNotExisting is surfaced by UpdateExisting/UpdateExistingItem when the key is absent.
	ErrNotExisting = errors.New("cache: key does not exist")
	// ErrInvalidUpdaterResult is returned by UpdateItem/UpdateExistingItem when the updater's Item
	// carries a TTL kind outside the four defined ones. The write is not applied and an invariant
	// violation is raised; the cache itself returns it as an ordinary error value and does not panic
	// on it (unless clog.IsTestMode is set).
	ErrInvalidUpdaterResult = errors.New("cache: updater returned a malformed result")
	// ErrInvalidStoreConfig names a startup-time construction error. New takes an already-built
	// Store and returns no error, so nothing in this package returns it.
	ErrInvalidStoreConfig = errors.New("cache: invalid store configuration")
)
