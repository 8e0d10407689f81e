package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Joe-noh/concache/pkg/rowlock"
	"github.com/Joe-noh/concache/pkg/store"
)

func newTestCache[V any](opts Options) (*Cache[string, V], func()) {
	c := New[string, V]("test", store.NewMap[string, V](), opts, nil)
	return c, func() { _ = c.Close() }
}

func TestPutGetDelete(t *testing.T) {
	ctx := context.Background()
	c, closeFn := newTestCache[int](DefaultOptions())
	defer closeFn()

	require.NoError(t, c.Put(ctx, "a", 1))
	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	require.NoError(t, c.Delete(ctx, "a"))
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
}

func TestInsertNew_FailsWhenAlreadyPresent(t *testing.T) {
	ctx := context.Background()
	c, closeFn := newTestCache[int](DefaultOptions())
	defer closeFn()

	require.NoError(t, c.InsertNew(ctx, "b", 2))
	v, ok := c.Get(ctx, "b")
	require.True(t, ok)
	assert.Equal(t, 2, v)

	err := c.InsertNew(ctx, "b", 3)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	v, ok = c.Get(ctx, "b")
	require.True(t, ok)
	assert.Equal(t, 2, v)
}

// TTL expiry takes effect on the second tick, not the first, because set is deferred to the
// pending batch.
func TestTTLExpiryOnSecondTick(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.TTL = 1 * time.Millisecond
	opts.TickInterval = 0 // overridden by newManualTickCache, which waits on each real tick via owner.onTick
	opts.TimeSizeBits = 8

	c := newManualTickCache[int](t, opts)
	defer c.close()

	require.NoError(t, c.cache.Put(ctx, "a", 1))
	v, ok := c.cache.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.tick()
	v, ok = c.cache.Get(ctx, "a")
	require.True(t, ok, "key must survive the first tick: the set is only applied, not yet due")
	assert.Equal(t, 1, v)

	c.tick()
	_, ok = c.cache.Get(ctx, "a")
	assert.False(t, ok, "key must be expired by the second tick")
}

func TestPut_RenewsExistingTTL(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.TTL = 1 * time.Millisecond
	opts.TickInterval = 0
	opts.TimeSizeBits = 8

	c := newManualTickCache[int](t, opts)
	defer c.close()

	require.NoError(t, c.cache.Put(ctx, "a", 1))
	c.tick()
	v, ok := c.cache.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	require.NoError(t, c.cache.Put(ctx, "a", 1))
	c.tick()
	v, ok = c.cache.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	c.tick()
	_, ok = c.cache.Get(ctx, "a")
	assert.False(t, ok)
}

func TestNoUpdateTTL_NeverExpires(t *testing.T) {
	ctx := context.Background()
	opts := DefaultOptions()
	opts.TTL = 1 * time.Millisecond
	opts.TickInterval = 0
	opts.TimeSizeBits = 8

	c := newManualTickCache[int](t, opts)
	defer c.close()

	require.NoError(t, c.cache.PutItem(ctx, "a", Item[int]{Value: 2, TTL: NoUpdateTTL()}))

	err := c.cache.UpdateItem(ctx, "a", func(current int, exists bool) (Item[int], error) {
		require.True(t, exists)
		return Item[int]{Value: 3, TTL: NoUpdateTTL()}, nil
	})
	require.NoError(t, err)

	v, ok := c.cache.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 3, v)

	// NoUpdate on both writes means no TTL was ever registered; the key never expires.
	c.tick()
	v, ok = c.cache.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 3, v)
}

func TestIsolated_NestedCallsAreReentrant(t *testing.T) {
	ctx := context.Background()
	c, closeFn := newTestCache[int](DefaultOptions())
	defer closeFn()

	result, err := Isolated(ctx, c, "a", func(ctx context.Context) (int, error) {
		return Isolated(ctx, c, "b", func(ctx context.Context) (int, error) {
			return Isolated(ctx, c, "c", func(ctx context.Context) (int, error) {
				return 1, nil
			})
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result)

	result, err = Isolated(ctx, c, "a", func(ctx context.Context) (int, error) {
		return 2, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result)
}

func TestTryIsolated_FailsWhileContended(t *testing.T) {
	ctx := context.Background()
	c, closeFn := newTestCache[int](DefaultOptions())
	defer closeFn()

	holding := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = Isolated(ctx, c, "a", func(ctx context.Context) (int, error) {
			close(holding)
			<-release
			return 0, nil
		})
	}()

	<-holding
	_, err := TryIsolated(ctx, c, "a", func(ctx context.Context) (int, error) { return 0, nil })
	assert.ErrorIs(t, err, rowlock.ErrLocked)

	close(release)
	wg.Wait()

	v, err := TryIsolated(ctx, c, "a", func(ctx context.Context) (int, error) { return 9, nil })
	require.NoError(t, err)
	assert.Equal(t, 9, v)
}

func TestGetOrStore_ComputesOnceAndCaches(t *testing.T) {
	ctx := context.Background()
	c, closeFn := newTestCache[int](DefaultOptions())
	defer closeFn()

	calls := 0
	loader := func() (Item[int], error) {
		calls++
		return Item[int]{Value: 42, TTL: DefaultTTL()}, nil
	}

	v, err := c.GetOrStore(ctx, "k", loader)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = c.GetOrStore(ctx, "k", loader)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls, "loader must only run once for a key that is already present")
}

func TestGetOrStore_PropagatesLoaderError(t *testing.T) {
	ctx := context.Background()
	c, closeFn := newTestCache[int](DefaultOptions())
	defer closeFn()

	boom := errors.New("boom")
	_, err := c.GetOrStore(ctx, "k", func() (Item[int], error) {
		return Item[int]{}, boom
	})
	assert.ErrorIs(t, err, boom)

	_, ok := c.Get(ctx, "k")
	assert.False(t, ok, "a failed loader must not leave a partial entry behind")
}

func TestUpdateExisting_FailsWhenAbsent(t *testing.T) {
	ctx := context.Background()
	c, closeFn := newTestCache[int](DefaultOptions())
	defer closeFn()

	err := c.UpdateExisting(ctx, "missing", func(current int) (int, error) {
		t.Fatal("updater must not run for an absent key")
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrNotExisting)
}

func TestUpdate_PropagatesUserError(t *testing.T) {
	ctx := context.Background()
	c, closeFn := newTestCache[int](DefaultOptions())
	defer closeFn()

	require.NoError(t, c.Put(ctx, "a", 1))
	userErr := errors.New("validation failed")
	err := c.Update(ctx, "a", func(current int, exists bool) (int, error) {
		return 0, userErr
	})
	assert.ErrorIs(t, err, userErr)

	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v, "a failed updater must leave the prior value untouched")
}

// manualTickCache runs a real owner loop on a short, fixed tick interval, but lets tests wait for
// exactly one tick to complete via a handshake on owner.onTick — set up before the loop starts, so
// there's no data race with the owner goroutine's first iteration.
type manualTickCache[V any] struct {
	cache    *Cache[string, V]
	tickDone chan struct{}
}

func newManualTickCache[V any](t *testing.T, opts Options) *manualTickCache[V] {
	t.Helper()
	opts.TickInterval = 5 * time.Millisecond
	c := newUnstarted[string, V]("test", store.NewMap[string, V](), opts, nil)
	done := make(chan struct{})
	c.owner.onTick = func() { done <- struct{}{} }
	c.start()
	return &manualTickCache[V]{cache: c, tickDone: done}
}

func (m *manualTickCache[V]) tick() {
	<-m.tickDone
}

func (m *manualTickCache[V]) close() { _ = m.cache.Close() }
