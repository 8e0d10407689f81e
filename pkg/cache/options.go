package cache

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/Joe-noh/concache/pkg/clog"
	"github.com/Joe-noh/concache/pkg/wheel"
)

// Options collects a cache's startup configuration. Construct one directly, or via
// github.com/Joe-noh/concache/pkg/cacheconfig.FromFlags for a flag-driven binary.
type Options struct {
	// TTL is the default TTL applied to a plain (non-Item) Put. 0 means no expiry.
	TTL time.Duration
	// TickInterval is the sweeper interval; zero disables expiry entirely (no OwnerLoop tick runs,
	// and TTLs are accepted but never enforced).
	TickInterval time.Duration
	// TouchOnRead renews a key's TTL on every successful Get.
	TouchOnRead bool
	// AcquireLockTimeout bounds how long Put/Update/Delete/Isolated wait for a contended row lock
	// when the caller doesn't supply its own context deadline.
	AcquireLockTimeout time.Duration
	// TimeSizeBits sets the wheel's tick-counter horizon: 2^TimeSizeBits - 1. Default 64 (i.e. no
	// practical horizon; normalization essentially never triggers).
	TimeSizeBits uint
	// LockShards is the number of row-lock shards. Default 256.
	LockShards int
}

// DefaultOptions returns concache's out-of-the-box configuration.
func DefaultOptions() Options {
	return Options{
		TTL:                0,
		TickInterval:       0,
		TouchOnRead:        false,
		AcquireLockTimeout: 5 * time.Second,
		TimeSizeBits:       64,
		LockShards:         256,
	}
}

// DebugString renders a human-readable snapshot of o for startup logging, round-tripping the
// interval fields through protobuf's well-known Duration type the same way the teacher's config
// loader formats a google.protobuf.Duration field for display.
func (o Options) DebugString() string {
	tick := durationpb.New(o.TickInterval).AsDuration()
	lockTimeout := durationpb.New(o.AcquireLockTimeout).AsDuration()
	return fmt.Sprintf(
		"ttl=%s tick_interval=%s touch_on_read=%t acquire_lock_timeout=%s time_size_bits=%d lock_shards=%d",
		o.TTL, tick, o.TouchOnRead, lockTimeout, o.TimeSizeBits, o.LockShards,
	)
}

// maxStep converts TimeSizeBits into the wheel horizon value: 2^bits - 1, saturating at
// wheel.Unbounded for 64 (2^64-1 already is wheel.Unbounded, but shifting 1<<64 overflows a uint64,
// so 64 is special-cased).
func (o Options) maxStep() uint64 {
	if o.TimeSizeBits == 0 {
		clog.RaiseInvariant("cache", "zero_time_size", "Options.TimeSizeBits must be positive.", "got", o.TimeSizeBits)
		return wheel.Unbounded
	}
	if o.TimeSizeBits >= 64 {
		return wheel.Unbounded
	}
	return (uint64(1) << o.TimeSizeBits) - 1
}

// defaultTTLSteps converts the millisecond TTL into wheel steps: ceil(ttl_ms / tick_interval_ms). A
// TickInterval of zero means the sweeper is disabled entirely, so there's nothing to register the TTL
// against.
func (o Options) defaultTTLSteps() uint64 {
	if o.TTL <= 0 || o.TickInterval <= 0 {
		return 0
	}
	steps := o.TTL / o.TickInterval
	if o.TTL%o.TickInterval != 0 {
		steps++
	}
	return uint64(steps)
}
