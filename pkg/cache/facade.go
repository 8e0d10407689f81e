// facade.go implements the public get/put/delete/update surface of Cache, generalized from the
// teacher repo's storage.KeyValueHolder-backed HyperClock cache
// (pkg/cache/hcc.go) to an arbitrary Store[K,V], with writes routed through pkg/rowlock and TTL
// bookkeeping routed through the owner goroutine in owner.go.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom/v3"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/Joe-noh/concache/pkg/clog"
	"github.com/Joe-noh/concache/pkg/rowlock"
	"github.com/Joe-noh/concache/pkg/store"
	"github.com/Joe-noh/concache/pkg/wheel"
)

const (
	presenceMinCapacity      = 1024
	presenceFalsePositiveRate = 0.01
	// presenceReseedEveryTicks bounds how often the presence filter is rebuilt, the same kind of
	// "don't do this on every tick" cadence the teacher applies to its reaper's bucket cleanup.
	presenceReseedEveryTicks = 64
)

// Cache is the public get/put/delete/update surface plus the owner goroutine it drives, bundled
// into one handle. Construct with New; Close releases the owner goroutine.
type Cache[K comparable, V any] struct {
	id       string
	store    store.Store[K, V]
	locks    *rowlock.Shards[K]
	owner    *owner[K]
	opts     Options
	callback func(Event[K, V])

	presenceMu sync.RWMutex
	presence   *bloom.BloomFilter
	tickCount  uint64

	cancel context.CancelFunc
}

// New constructs a Cache backed by st, starts its OwnerLoop goroutine, and returns the handle.
// callback may be nil, in which case events are discarded.
func New[K comparable, V any](id string, st store.Store[K, V], opts Options, callback func(Event[K, V])) *Cache[K, V] {
	c := newUnstarted[K, V](id, st, opts, callback)
	c.start()
	return c
}

// newUnstarted builds a Cache without starting its OwnerLoop goroutine, so tests can attach
// additional owner hooks (see owner.onTick) before the loop begins consuming them.
func newUnstarted[K comparable, V any](id string, st store.Store[K, V], opts Options, callback func(Event[K, V])) *Cache[K, V] {
	if callback == nil {
		callback = func(Event[K, V]) {}
	}

	c := &Cache[K, V]{
		id:       id,
		store:    st,
		locks:    rowlock.New[K](opts.LockShards),
		opts:     opts,
		callback: callback,
		presence: bloom.NewWithEstimates(presenceMinCapacity, presenceFalsePositiveRate),
	}
	c.owner = newOwner[K](id, opts.maxStep(), c.onExpired)
	c.owner.onTick = c.maybeReseedPresence
	return c
}

func (c *Cache[K, V]) start() {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	go c.owner.run(ctx, c.opts.TickInterval)
}

// ID returns the cache identifier events are stamped with.
func (c *Cache[K, V]) ID() string { return c.id }

// Close stops the owner goroutine and closes the backing store.
func (c *Cache[K, V]) Close() error {
	c.cancel()
	return c.store.Close()
}

// Get is a dirty read (no lock). On a hit, it also renews the key's TTL if touch_on_read is
// configured.
func (c *Cache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	v, err := c.store.Get(key)
	if err != nil {
		var zero V
		clog.FacadeOpsTotal.WithLabelValues("get", "miss").Inc()
		return zero, false
	}
	if c.opts.TouchOnRead {
		c.owner.setTTL(ctx, key, wheel.Renew())
	}
	clog.FacadeOpsTotal.WithLabelValues("get", "hit").Inc()
	return v, true
}

// Put stores value under the cache's default TTL.
func (c *Cache[K, V]) Put(ctx context.Context, key K, value V) error {
	return c.PutItem(ctx, key, Item[V]{Value: value, TTL: DefaultTTL()})
}

// PutItem stores item.Value under item.TTL's directive. Acquires the row lock for key.
func (c *Cache[K, V]) PutItem(ctx context.Context, key K, item Item[V]) error {
	err := c.withLock(ctx, key, func(ctx context.Context) error {
		return c.storeAndRegister(ctx, key, item)
	})
	clog.FacadeOpsTotal.WithLabelValues("put", outcomeOf(err)).Inc()
	return err
}

// InsertNew stores value only if key is absent, under the default TTL.
func (c *Cache[K, V]) InsertNew(ctx context.Context, key K, value V) error {
	return c.InsertNewItem(ctx, key, Item[V]{Value: value, TTL: DefaultTTL()})
}

// InsertNewItem stores item only if key is absent; returns ErrAlreadyExists otherwise.
func (c *Cache[K, V]) InsertNewItem(ctx context.Context, key K, item Item[V]) error {
	err := c.withLock(ctx, key, func(ctx context.Context) error {
		if insertErr := c.store.Insert(key, item.Value); insertErr != nil {
			if errors.Is(insertErr, store.ErrAlreadyPresent) {
				return ErrAlreadyExists
			}
			return insertErr
		}
		c.markPresent(key)
		c.registerTTL(ctx, key, item.TTL)
		c.emitUpdate(key, item.Value)
		return nil
	})
	clog.FacadeOpsTotal.WithLabelValues("insert_new", outcomeOf(err)).Inc()
	return err
}

// Update acquires key's lock, calls fn with the current value (and whether it exists), and stores
// fn's result under the default TTL. fn's error is propagated unchanged.
func (c *Cache[K, V]) Update(ctx context.Context, key K, fn func(current V, exists bool) (V, error)) error {
	return c.UpdateItem(ctx, key, func(current V, exists bool) (Item[V], error) {
		v, err := fn(current, exists)
		return Item[V]{Value: v, TTL: DefaultTTL()}, err
	})
}

// UpdateItem is Update with explicit control over the stored TTL directive.
func (c *Cache[K, V]) UpdateItem(ctx context.Context, key K, fn func(current V, exists bool) (Item[V], error)) error {
	err := c.withLock(ctx, key, func(ctx context.Context) error {
		current, getErr := c.store.Get(key)
		exists := getErr == nil
		if getErr != nil && !errors.Is(getErr, store.ErrKeyNotFound) {
			return getErr
		}

		item, fnErr := fn(current, exists)
		if fnErr != nil {
			return fnErr
		}
		if !IsValidTTLKind(item.TTL.Kind) {
			clog.RaiseCacheInvariant(c.id, "cache", "invalid_updater_ttl",
				"Updater returned an Item with an out-of-range TTL kind.", "key", key, "kind", item.TTL.Kind)
			return ErrInvalidUpdaterResult
		}
		return c.storeAndRegister(ctx, key, item)
	})
	clog.FacadeOpsTotal.WithLabelValues("update", outcomeOf(err)).Inc()
	return err
}

// UpdateExisting is Update, but fails with ErrNotExisting instead of calling fn when key is absent.
func (c *Cache[K, V]) UpdateExisting(ctx context.Context, key K, fn func(current V) (V, error)) error {
	return c.UpdateExistingItem(ctx, key, func(current V) (Item[V], error) {
		v, err := fn(current)
		return Item[V]{Value: v, TTL: DefaultTTL()}, err
	})
}

// UpdateExistingItem is UpdateItem, but fails with ErrNotExisting instead of calling fn when key is
// absent.
func (c *Cache[K, V]) UpdateExistingItem(ctx context.Context, key K, fn func(current V) (Item[V], error)) error {
	err := c.withLock(ctx, key, func(ctx context.Context) error {
		current, getErr := c.store.Get(key)
		if getErr != nil {
			if errors.Is(getErr, store.ErrKeyNotFound) {
				return ErrNotExisting
			}
			return getErr
		}

		item, fnErr := fn(current)
		if fnErr != nil {
			return fnErr
		}
		if !IsValidTTLKind(item.TTL.Kind) {
			clog.RaiseCacheInvariant(c.id, "cache", "invalid_updater_ttl",
				"Updater returned an Item with an out-of-range TTL kind.", "key", key, "kind", item.TTL.Kind)
			return ErrInvalidUpdaterResult
		}
		return c.storeAndRegister(ctx, key, item)
	})
	clog.FacadeOpsTotal.WithLabelValues("update_existing", outcomeOf(err)).Inc()
	return err
}

// Delete removes key, firing the delete callback before the store mutation. Deleting an absent key
// is not an error (the delete callback still fires for it); Delete fails only when the row lock
// cannot be acquired in time (ErrTimeout) or the backing store reports an error of its own.
func (c *Cache[K, V]) Delete(ctx context.Context, key K) error {
	err := c.withLock(ctx, key, func(ctx context.Context) error {
		c.callback(newDeleteEvent[K, V](c.id, key, nowTimestamp()))
		if delErr := c.store.Delete(key); delErr != nil && !errors.Is(delErr, store.ErrKeyNotFound) {
			return delErr
		}
		return nil
	})
	clog.FacadeOpsTotal.WithLabelValues("delete", outcomeOf(err)).Inc()
	return err
}

// GetOrStore returns the existing value for key, or computes one with fn and stores it. The dirty
// first read is accelerated by the presence filter: a definite miss there skips straight past the
// dirty store.Get into the locked path, which always re-checks the store before calling fn, so a
// false negative only costs an extra lock acquisition, never correctness.
func (c *Cache[K, V]) GetOrStore(ctx context.Context, key K, fn func() (Item[V], error)) (V, error) {
	if c.mightBePresent(key) {
		if v, ok := c.Get(ctx, key); ok {
			clog.FacadeOpsTotal.WithLabelValues("get_or_store", "hit").Inc()
			return v, nil
		}
	} else {
		clog.PresenceFilterSkipsTotal.Inc()
	}

	var result V
	err := c.withLock(ctx, key, func(ctx context.Context) error {
		if v, getErr := c.store.Get(key); getErr == nil {
			result = v
			return nil
		} else if !errors.Is(getErr, store.ErrKeyNotFound) {
			return getErr
		}

		item, fnErr := fn()
		if fnErr != nil {
			return fnErr
		}
		if storeErr := c.storeAndRegister(ctx, key, item); storeErr != nil {
			return storeErr
		}
		result = item.Value
		return nil
	})
	clog.FacadeOpsTotal.WithLabelValues("get_or_store", outcomeOf(err)).Inc()
	if err != nil {
		var zero V
		return zero, err
	}
	return result, nil
}

// Touch renews key's TTL by its previously recorded interval, without acquiring the row lock.
func (c *Cache[K, V]) Touch(ctx context.Context, key K) {
	c.owner.setTTL(ctx, key, wheel.Renew())
	clog.FacadeOpsTotal.WithLabelValues("touch", "ok").Inc()
}

// Size returns the number of entries currently in the backing store.
func (c *Cache[K, V]) Size() int { return c.store.Len() }

// TTLStepsForDuration converts a real-time duration into the number of wheel ticks it spans,
// rounding up — the same ceil(ttl/tick_interval) conversion applied to the configured default TTL.
// Exposed so callers translating an external, real-time TTL (e.g. pkg/server's EXPIRE command) into
// an explicit StepsTTL don't have to reimplement the rounding rule.
func (c *Cache[K, V]) TTLStepsForDuration(d time.Duration) uint64 {
	if d <= 0 || c.opts.TickInterval <= 0 {
		return 0
	}
	steps := d / c.opts.TickInterval
	if d%c.opts.TickInterval != 0 {
		steps++
	}
	return uint64(steps)
}

// storeAndRegister is the common tail of every successful write: persist, mark present, register
// the TTL directive with the owner loop, and emit an Update event. Must be called with key's lock
// already held.
func (c *Cache[K, V]) storeAndRegister(ctx context.Context, key K, item Item[V]) error {
	if err := c.store.Set(key, item.Value); err != nil {
		return err
	}
	c.markPresent(key)
	c.registerTTL(ctx, key, item.TTL)
	c.emitUpdate(key, item.Value)
	return nil
}

func (c *Cache[K, V]) registerTTL(ctx context.Context, key K, ttl TTLSpec) {
	action, ok := ttl.wheelAction(c.opts.defaultTTLSteps())
	if !ok {
		return
	}
	c.owner.setTTL(ctx, key, action)
}

func (c *Cache[K, V]) emitUpdate(key K, value V) {
	c.callback(newUpdateEvent(c.id, key, value, nowTimestamp()))
}

// onExpired is the owner loop's delete path: route every expired key back
// through the row lock and the delete callback, same as a user Delete, isolating one key's failure
// from the rest of the batch.
func (c *Cache[K, V]) onExpired(ctx context.Context, keys []K) {
	for _, key := range keys {
		guard, err := c.acquireBlocking(ctx, key, holderFromContext(context.Background()))
		if err != nil {
			clog.RaiseCacheInvariant(c.id, "cache", "sweep_lock_timeout",
				"Sweeper could not acquire the row lock for an expired key within its timeout; the key will be retried on a future sweep only if it is re-armed.",
				"key", key)
			continue
		}
		func() {
			defer guard.Release()
			defer func() {
				if r := recover(); r != nil {
					clog.RaiseCacheInvariant(c.id, "cache", "sweep_delete_panic",
						"Recovered from a panic while deleting an expired key.", "key", key, "panic", r)
				}
			}()
			c.callback(newDeleteEvent[K, V](c.id, key, nowTimestamp()))
			if delErr := c.store.Delete(key); delErr != nil && !errors.Is(delErr, store.ErrKeyNotFound) {
				clog.RaiseCacheInvariant(c.id, "cache", "sweep_delete_error",
					"Sweeper failed to delete an expired key from the backing store.", "key", key, "error", delErr)
			}
		}()
	}
}

func (c *Cache[K, V]) markPresent(key K) {
	c.presenceMu.Lock()
	c.presence.Add(presenceKeyBytes(key))
	c.presenceMu.Unlock()
}

func (c *Cache[K, V]) mightBePresent(key K) bool {
	c.presenceMu.RLock()
	defer c.presenceMu.RUnlock()
	return c.presence.Test(presenceKeyBytes(key))
}

// maybeReseedPresence is OwnerLoop's onTick hook: every presenceReseedEveryTicks ticks, rebuild the
// filter sized to the store's current length, so its false-positive rate stays bounded as the
// working set shrinks (e.g. after a burst of expiries). Rebuilding drops prior Adds, but that only
// ever turns a "maybe present" into a "definitely absent" for a live key, and GetOrStore's locked
// path re-checks the store before concluding a key is actually missing — so this never produces a
// wrong answer, only an occasional unnecessary lock acquisition.
func (c *Cache[K, V]) maybeReseedPresence() {
	c.tickCount++
	if c.tickCount%presenceReseedEveryTicks != 0 {
		return
	}
	n := uint(c.store.Len())
	if n < presenceMinCapacity {
		n = presenceMinCapacity
	}
	fresh := bloom.NewWithEstimates(n*2, presenceFalsePositiveRate)
	c.presenceMu.Lock()
	c.presence = fresh
	c.presenceMu.Unlock()
}

func presenceKeyBytes[K comparable](key K) []byte {
	return []byte(fmt.Sprintf("%#v", key))
}

func nowTimestamp() *timestamppb.Timestamp {
	return timestamppb.Now()
}

func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}

// acquireBlocking acquires key's lock for holder, applying AcquireLockTimeout as ctx's deadline when
// ctx doesn't already carry one of its own, and recording wait latency.
func (c *Cache[K, V]) acquireBlocking(ctx context.Context, key K, holder any) (*rowlock.Guard[K], error) {
	lockCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline && c.opts.AcquireLockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, c.opts.AcquireLockTimeout)
		defer cancel()
	}

	start := time.Now()
	guard, err := c.locks.Acquire(lockCtx, key, holder)
	clog.LockWaitSeconds.Observe(time.Since(start).Seconds())
	return guard, err
}

// withLock runs fn with key's row lock held, reusing the holder identity already carried on ctx (if
// any) so nested Isolated calls from the same logical caller are reentrant.
func (c *Cache[K, V]) withLock(ctx context.Context, key K, fn func(ctx context.Context) error) error {
	holder := holderFromContext(ctx)
	guard, err := c.acquireBlocking(ctx, key, holder)
	if err != nil {
		return err
	}
	defer guard.Release()
	return fn(withHolder(ctx, holder))
}

// withTryLock is withLock's non-blocking counterpart, backing TryIsolated.
func (c *Cache[K, V]) withTryLock(ctx context.Context, key K, fn func(ctx context.Context) error) error {
	holder := holderFromContext(ctx)
	guard, err := c.locks.TryAcquire(key, holder)
	if err != nil {
		return err
	}
	defer guard.Release()
	return fn(withHolder(ctx, holder))
}

type holderContextKey struct{}

// holderFromContext returns the holder identity already in play on ctx (set by an enclosing
// Isolated/TryIsolated call), or a fresh one-off identity if this is a top-level call.
func holderFromContext(ctx context.Context) any {
	if h := ctx.Value(holderContextKey{}); h != nil {
		return h
	}
	// Non-zero size on purpose: distinct zero-size allocations may share one address, which would
	// make every fresh holder compare equal and turn unrelated callers into reentrant ones.
	return new(byte)
}

func withHolder(ctx context.Context, holder any) context.Context {
	return context.WithValue(ctx, holderContextKey{}, holder)
}

// Isolated acquires key's row lock (blocking, bounded by
// ctx's deadline or Options.AcquireLockTimeout), run fn, release. Implemented as a free function,
// not a method on Cache, because fn's result type R is a type parameter not carried by Cache[K,V]'s
// own receiver — Go methods cannot introduce type parameters beyond those of their receiver.
func Isolated[K comparable, V any, R any](ctx context.Context, c *Cache[K, V], key K, fn func(ctx context.Context) (R, error)) (R, error) {
	var result R
	err := c.withLock(ctx, key, func(ctx context.Context) error {
		r, fnErr := fn(ctx)
		result = r
		return fnErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}

// TryIsolated attempts a non-blocking row lock acquisition, returning
// rowlock.ErrLocked immediately if another holder currently owns key.
func TryIsolated[K comparable, V any, R any](ctx context.Context, c *Cache[K, V], key K, fn func(ctx context.Context) (R, error)) (R, error) {
	var result R
	err := c.withTryLock(ctx, key, func(ctx context.Context) error {
		r, fnErr := fn(ctx)
		result = r
		return fnErr
	})
	if err != nil {
		var zero R
		return zero, err
	}
	return result, nil
}
