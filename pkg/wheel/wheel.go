// Package wheel implements a discrete-time, bucketed expiry structure: the mapping of keys to the
// future tick at which they must be evicted. It is the single-owner counterpart to the teacher
// repo's expirable CLOCK cache (pkg/cache/hcc.go in nobletooth/kiwi), generalized from wall-clock
// buckets keyed by time.Time to abstract tick-index buckets keyed by uint64, and from an
// internally-synchronized cache to a structure meant to be driven exclusively by one owner goroutine
// (see concache's OwnerLoop) — so Wheel itself holds no lock.
//
// All operations are sequential. Wheel does not protect itself against concurrent callers; that
// contract is enforced by its caller, not by this package.
package wheel

import "github.com/Joe-noh/concache/pkg/clog"

// TTLActionKind enumerates the deferred TTL mutations a caller can request via Set.
type TTLActionKind uint8

const (
	// ActionSteps schedules (or reschedules) a key to expire Steps ticks from the next next_step call.
	ActionSteps TTLActionKind = iota
	// ActionRenew extends a key's life by whatever interval it was last given, if it is still live.
	ActionRenew
)

// TTLAction is a pending mutation to a key's expiry, collapsed with any other pending mutation for
// the same key until the next tick boundary applies it.
type TTLAction struct {
	Kind  TTLActionKind
	Steps uint64 // Only meaningful when Kind == ActionSteps.
}

// Steps builds a TTLAction that (re)schedules a key to expire n ticks from the next tick boundary.
func Steps(n uint64) TTLAction { return TTLAction{Kind: ActionSteps, Steps: n} }

// Renew builds a TTLAction that extends a key's life by its previously recorded interval.
func Renew() TTLAction { return TTLAction{Kind: ActionRenew} }

// due records, for a live key, the absolute tick at which it expires and the interval it was given
// (the latter needed to honor a later Renew with the same length).
type due struct {
	expiresAt    uint64
	expiresAfter uint64
}

// Wheel is a tick-indexed bucketed expiry structure: each key lives in exactly one bucket keyed by
// the tick at which it expires. The zero value is not usable; construct with New.
type Wheel[K comparable] struct {
	currentStep uint64
	maxStep     uint64 // Horizon; current_step wraps to 0 on reaching it. math.MaxUint64 means "no horizon".
	buckets     map[uint64]map[K]struct{}
	due         map[K]due
	pending     map[K]TTLAction
}

// Unbounded is the max_step value meaning the wheel horizon never triggers normalization.
const Unbounded = ^uint64(0)

// New creates an empty wheel with current_step = 0 and the given horizon. A maxStep of Unbounded
// (or 0, which would normalize on every tick and makes no practical sense) disables normalization.
func New[K comparable](maxStep uint64) *Wheel[K] {
	if maxStep == 0 {
		clog.RaiseInvariant("wheel", "zero_max_step",
			"Wheel constructed with max_step=0; treating as unbounded since it would normalize on every tick.")
		maxStep = Unbounded
	}
	return &Wheel[K]{
		maxStep: maxStep,
		buckets: make(map[uint64]map[K]struct{}),
		due:     make(map[K]due),
		pending: make(map[K]TTLAction),
	}
}

// CurrentStep returns the wheel's current logical tick, for diagnostics/tests only.
func (w *Wheel[K]) CurrentStep() uint64 { return w.currentStep }

// Len returns the number of live keys currently tracked by the wheel (pending actions not yet
// applied are not counted).
func (w *Wheel[K]) Len() int { return len(w.due) }

// Set records an intended TTL change, deferred until the next next_step call. Multiple sets between
// two ticks collapse to at most one effective action per key:
//   - new Renew + existing Steps(n)  -> keep Steps(n)
//   - new Renew + existing Renew     -> keep Renew
//   - new Steps(n) + anything        -> overwrite with Steps(n)
func (w *Wheel[K]) Set(k K, action TTLAction) {
	if existing, ok := w.pending[k]; ok && action.Kind == ActionRenew && existing.Kind == ActionSteps {
		return // Keep the existing numeric action; Renew never downgrades a concrete Steps request.
	}
	w.pending[k] = action
}

// removeFromBucket removes k from the bucket it is recorded as due in, if any, cleaning up an empty
// bucket afterwards so buckets never accumulates empty sets.
func (w *Wheel[K]) removeFromBucket(k K, tick uint64) {
	bucket, ok := w.buckets[tick]
	if !ok {
		return
	}
	delete(bucket, k)
	if len(bucket) == 0 {
		delete(w.buckets, tick)
	}
}

func (w *Wheel[K]) scheduleAt(k K, tick, interval uint64) {
	if old, ok := w.due[k]; ok {
		w.removeFromBucket(k, old.expiresAt)
	}
	if w.buckets[tick] == nil {
		w.buckets[tick] = make(map[K]struct{})
	}
	w.buckets[tick][k] = struct{}{}
	w.due[k] = due{expiresAt: tick, expiresAfter: interval}
}

// applyPending applies every queued TTL mutation, then clears pending. Must be called with
// currentStep already advanced to the tick these actions schedule relative to.
func (w *Wheel[K]) applyPending() {
	for k, action := range w.pending {
		switch action.Kind {
		case ActionSteps:
			if action.Steps == 0 {
				continue // Steps(0) is a no-op: zero TTL means "don't expire".
			}
			w.scheduleAt(k, w.currentStep+action.Steps, action.Steps)
		case ActionRenew:
			if prior, ok := w.due[k]; ok {
				w.scheduleAt(k, w.currentStep+prior.expiresAfter, prior.expiresAfter)
			}
			// Absent: the item already expired (or was never set); renewing it is a silent no-op,
			// accepted as a race against expiry rather than an error.
		default:
			clog.RaiseInvariant("wheel", "unknown_action_kind",
				"Got an unknown TTLActionKind in pending.", "kind", action.Kind)
		}
	}
	clear(w.pending)
}

// normalize rebases every absolute tick value so they all sit below the horizon again. Invoked when
// current_step has just reached max_step, before current_step is reset to 0. Keys whose rebased
// tick would be non-positive become due at tick 0 of the new epoch.
func (w *Wheel[K]) normalize() {
	// At this point w.currentStep has just been bumped to w.maxStep (the horizon that triggered this
	// normalization). A key due exactly at the horizon is due "now" (the invariant that due[k].0 ==
	// current_step only transiently during a tick) and must land in the bucket checked immediately
	// after reset, i.e. bucket 0 of the new epoch — hence subtracting currentStep itself, not
	// currentStep+1. Live due entries can never have an absolute tick below currentStep (they would
	// already have expired in an earlier tick), so the <= branch only ever fires for the == case.
	rebase := func(t uint64) uint64 {
		if t <= w.currentStep {
			return 0
		}
		return t - w.currentStep
	}

	newBuckets := make(map[uint64]map[K]struct{}, len(w.buckets))
	for t, keys := range w.buckets {
		nt := rebase(t)
		if newBuckets[nt] == nil {
			newBuckets[nt] = make(map[K]struct{}, len(keys))
		}
		for k := range keys {
			newBuckets[nt][k] = struct{}{}
		}
	}
	w.buckets = newBuckets

	for k, d := range w.due {
		d.expiresAt = rebase(d.expiresAt)
		w.due[k] = d
	}

	clog.WheelNormalizationsTotal.Inc()
}

// NextStep atomically advances the wheel by one tick, applies every pending TTL mutation, and
// returns the set of keys whose expiry has just arrived: advance currentStep, apply pending sets,
// drain the bucket at the new currentStep, remove each drained key from due, and return them.
func (w *Wheel[K]) NextStep() (expired []K) {
	if candidate := w.currentStep + 1; candidate == w.maxStep {
		// Set currentStep to the about-to-be-reached horizon first: normalize's rebase formula is
		// defined in terms of "current_step == max_step" at the instant normalization triggers.
		w.currentStep = candidate
		w.normalize()
		w.currentStep = 0
	} else {
		w.currentStep = candidate
	}

	w.applyPending()

	bucket := w.buckets[w.currentStep]
	if len(bucket) > 0 {
		expired = make([]K, 0, len(bucket))
		for k := range bucket {
			expired = append(expired, k)
			delete(w.due, k)
		}
	}
	delete(w.buckets, w.currentStep)

	clog.WheelTicksTotal.Inc()
	clog.WheelExpiredKeysTotal.Add(float64(len(expired)))
	return expired
}

// Remove drops a key from the wheel entirely: its bucket entry, its due record, and any pending
// action. Cache does not call it; a key removed by an explicit Cache.Delete keeps its wheel entry
// until that entry expires.
func (w *Wheel[K]) Remove(k K) {
	if d, ok := w.due[k]; ok {
		w.removeFromBucket(k, d.expiresAt)
		delete(w.due, k)
	}
	delete(w.pending, k)
}
