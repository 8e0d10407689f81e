// Package cacheconfig collects concache's startup configuration as package-level flags, the same
// shape the teacher repo declares its own knobs in
// (pkg/storage/block_cache.go's cacheEnabled/cacheCapacity/... vars,
// pkg/port/backend.go's dataDir, pkg/port/redis.go's address).
package cacheconfig

import (
	"flag"
	"time"

	"github.com/Joe-noh/concache/pkg/cache"
)

var (
	ttl = flag.Duration("cache_ttl", 0,
		"Default TTL applied to a plain (non-Item) write; 0 means no expiry.")
	ttlCheckInterval = flag.Duration("cache_ttl_check_interval", 0,
		"Sweeper tick interval; 0 disables expiry entirely (TTLs are accepted but never enforced).")
	touchOnRead = flag.Bool("cache_touch_on_read", false,
		"Renew a key's TTL on every successful read.")
	acquireLockTimeout = flag.Duration("cache_acquire_lock_timeout", 5*time.Second,
		"How long a write waits to acquire a contended row lock before giving up.")
	timeSizeBits = flag.Uint("cache_time_size", 64,
		"Bit-width of the expiry wheel's tick-counter horizon (horizon = 2^n - 1).")
	lockShards = flag.Int("cache_lock_shards", cache.DefaultOptions().LockShards,
		"Number of row-lock shards.")
)

// FromFlags builds an Options from the registered flags, which must already be parsed (flag.Parse
// called) by the time this runs — matching the teacher's own flag-reading constructors
// (port.NewKiwiStorage reading *dataDir, storage.newBlockCache reading *cacheCapacity et al.).
func FromFlags() cache.Options {
	return cache.Options{
		TTL:                *ttl,
		TickInterval:       *ttlCheckInterval,
		TouchOnRead:        *touchOnRead,
		AcquireLockTimeout: *acquireLockTimeout,
		TimeSizeBits:       *timeSizeBits,
		LockShards:         *lockShards,
	}
}
