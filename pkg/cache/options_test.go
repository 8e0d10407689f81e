package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Joe-noh/concache/pkg/wheel"
)

func TestOptions_DebugStringRendersConfiguredValues(t *testing.T) {
	opts := Options{
		TTL:                30 * time.Second,
		TickInterval:       time.Second,
		TouchOnRead:        true,
		AcquireLockTimeout: 5 * time.Second,
		TimeSizeBits:       16,
		LockShards:         64,
	}

	s := opts.DebugString()
	assert.Contains(t, s, "ttl=30s")
	assert.Contains(t, s, "tick_interval=1s")
	assert.Contains(t, s, "touch_on_read=true")
	assert.Contains(t, s, "acquire_lock_timeout=5s")
	assert.Contains(t, s, "time_size_bits=16")
	assert.Contains(t, s, "lock_shards=64")
}

func TestOptions_MaxStepSaturatesAtUnbounded(t *testing.T) {
	opts := DefaultOptions() // TimeSizeBits: 64
	assert.Equal(t, wheel.Unbounded, opts.maxStep())
}

func TestOptions_MaxStepRespectsSmallerHorizon(t *testing.T) {
	opts := DefaultOptions()
	opts.TimeSizeBits = 4
	assert.Equal(t, uint64(15), opts.maxStep())
}
