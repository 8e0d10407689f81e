package clog

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Shared metrics exported by the cache core. Grouped here, rather than one-off per package, because
// they describe one logical subsystem (the running cache) and Prometheus discourages duplicate
// metric names across packages registering their own promauto collectors.
var (
	WheelTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concache_wheel_ticks_total",
		Help: "Total number of ExpiryWheel next_step advances.",
	})
	WheelExpiredKeysTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concache_wheel_expired_keys_total",
		Help: "Total number of keys produced by ExpiryWheel next_step.",
	})
	WheelNormalizationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concache_wheel_normalizations_total",
		Help: "Total number of times the ExpiryWheel rebased its bucket indices.",
	})
	LockWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name: "concache_lock_wait_seconds",
		Help: "Time spent waiting to acquire a row lock.",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
	})
	FacadeOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "concache_facade_ops_total",
		Help: "Total number of cache operations by name and outcome.",
	}, []string{"op", "outcome"})
	PresenceFilterSkipsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "concache_presence_filter_skips_total",
		Help: "Total number of dirty reads skipped because the presence filter reported a definite miss.",
	})
)
