// Invariants are conditions in code that must be true; otherwise, there is a bug in the code.
// Think of what you'd `panic()` on (equivalent to `assert` in other languages), but you don't want
// to crash the process just because of that violation. If an invariant is violated, a log error is
// recorded and a monitoring counter is incremented so it can page someone, while execution continues
// with whatever degraded behavior the caller chooses (usually an early return).
//
// Do not use invariants for conditions that depend on external factors — a backing store timing out
// is not an invariant violation. Reserve them for state that our own code should never have produced,
// e.g. a wheel bucket referencing a key the due-map disagrees about.
package clog

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	promclient "github.com/prometheus/client_model/go"
)

var invariantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "concache_invariants_total",
	Help: "The total number of invariant violations observed.",
}, []string{
	"cache_id", // The cache instance this invariant fired against, or "" if module-scoped (e.g. wheel, rowlock).
	"module",   // The package in which this invariant occurred.
	"type",     // The kind of invariant that occurred.
})

// IsTestMode, when set (e.g. from an init() in a _test.go file), makes
// RaiseInvariant panic instead of merely logging, so violated invariants fail tests loudly.
var IsTestMode bool

// RaiseInvariant flags a module-level invariant violation with no cache identity attached — for
// components like wheel and rowlock that are shared across caches and have no single cache id to
// blame. Cache-scoped callers should use RaiseCacheInvariant instead.
func RaiseInvariant(module, invariantType, msg string, args ...any) {
	raise("", module, invariantType, msg, args...)
}

// RaiseCacheInvariant flags an invariant violation observed while servicing a specific cache
// instance, tagging both the log line and the concache_invariants_total series with cacheID so a
// single misbehaving cache can be isolated from the rest of a multi-cache process.
func RaiseCacheInvariant(cacheID, module, invariantType, msg string, args ...any) {
	raise(cacheID, module, invariantType, msg, args...)
}

func raise(cacheID, module, invariantType, msg string, args ...any) {
	invariantsTotal.WithLabelValues(cacheID, module, invariantType).Inc()
	logger := slog.With("invariant", invariantType, "module", module)
	if cacheID != "" {
		logger = logger.With("cache_id", cacheID)
	}
	logger.Error(msg, args...)
	if IsTestMode {
		panic("invariant violated: " + invariantType)
	}
}

// GetMetricValue returns the current value of the invariant counter for (cacheID, module,
// invariantType). Exists primarily so tests can assert an invariant fired without parsing log
// output; pass "" for cacheID to read a module-scoped (RaiseInvariant) counter.
func GetMetricValue(cacheID, module, invariantType string) int {
	metric := &promclient.Metric{}
	if err := invariantsTotal.WithLabelValues(cacheID, module, invariantType).Write(metric); err != nil {
		slog.Error(err.Error())
		return 0
	}
	return int(metric.Counter.GetValue())
}
