// owner.go implements the single goroutine that exclusively owns the ExpiryWheel, driving it at a
// fixed cadence and dispatching the deletions it produces. Its shape is
// lifted directly from the teacher repo's reaper goroutine (pkg/cache/hcc.go's
// `func (c *HyperClock[K, V]) reaper(...)`), generalized from a wall-clock ticker sweeping time
// buckets to a logical-tick ticker driving wheel.Wheel.
package cache

import (
	"context"
	"time"

	"github.com/Joe-noh/concache/pkg/clog"
	"github.com/Joe-noh/concache/pkg/wheel"
)

type setTTLMsg[K comparable] struct {
	key    K
	action wheel.TTLAction
}

// owner drives a *wheel.Wheel[K] from a single goroutine (run), accepting set-TTL requests over
// setCh and reporting expired keys to onExpired. No other goroutine may touch the wheel; all access
// to it goes through channel messages handled inside run.
type owner[K comparable] struct {
	cacheID   string
	wheel     *wheel.Wheel[K]
	setCh     chan setTTLMsg[K]
	onExpired func(ctx context.Context, keys []K)
	// onTick, if set, fires after every tick (whether or not it produced expired keys). Used by
	// Cache to periodically rebuild its presence filter, piggybacking on OwnerLoop's cadence rather
	// than running a second timer.
	onTick func()
	// tick counts completed wheel advances. Only ever read or written from the owner goroutine
	// itself (inside run/dispatchExpired), so it needs no synchronization of its own.
	tick uint64
}

func newOwner[K comparable](cacheID string, maxStep uint64, onExpired func(ctx context.Context, keys []K)) *owner[K] {
	return &owner[K]{
		cacheID:   cacheID,
		wheel:     wheel.New[K](maxStep),
		setCh:     make(chan setTTLMsg[K], 1024),
		onExpired: onExpired,
	}
}

// setTTL enqueues a deferred TTL mutation for the owner goroutine to apply on its next tick. Safe to
// call from any goroutine; this is Cache's only way of talking to the wheel.
func (o *owner[K]) setTTL(ctx context.Context, key K, action wheel.TTLAction) {
	select {
	case o.setCh <- setTTLMsg[K]{key: key, action: action}:
	case <-ctx.Done():
		clog.RaiseCacheInvariant(o.cacheID, "cache", "set_ttl_backpressure",
			"Dropped a set_ttl message because the owner loop's channel was full and the caller gave up waiting.",
			"key", key)
	}
}

// run is OwnerLoop's body: tick ExpiryWheel at interval, dispatch every expired key through
// onExpired, and drain pending setTTL messages between ticks. Exits when ctx is done. A zero
// interval means the sweeper is disabled: run only drains setTTL messages (accepted but never
// enforced).
func (o *owner[K]) run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-o.setCh:
				o.wheel.Set(msg.key, msg.action)
			}
		}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-o.setCh:
			o.wheel.Set(msg.key, msg.action)
		case <-ticker.C:
			o.tick++
			expired := o.wheel.NextStep()
			if len(expired) > 0 {
				o.dispatchExpired(ctx, expired)
			}
			if o.onTick != nil {
				o.onTick()
			}
		}
	}
}

// dispatchExpired routes the wheel's output back through the cache's delete path, recovering so a
// single misbehaving delete callback cannot halt the tick loop.
func (o *owner[K]) dispatchExpired(ctx context.Context, expired []K) {
	defer func() {
		if r := recover(); r != nil {
			clog.RaiseCacheInvariant(o.cacheID, "cache", "sweep_delete_panic",
				"Recovered from a panic while dispatching expired keys.", "panic", r, "tick", o.tick)
		}
	}()
	o.onExpired(ctx, expired)
}
