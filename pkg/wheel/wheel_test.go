package wheel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextStep_EmptyWheelStaysEmpty(t *testing.T) {
	w := New[string](Unbounded)
	for range 5 {
		expired := w.NextStep()
		assert.Empty(t, expired)
	}
	assert.Equal(t, 0, w.Len())
}

func TestSet_StepsNExpiresAfterExactlyNTicks(t *testing.T) {
	for n := uint64(1); n <= 5; n++ {
		w := New[string](Unbounded)
		w.Set("a", Steps(n))
		for range n {
			expired := w.NextStep()
			assert.Emptyf(t, expired, "n=%d: key expired too early", n)
		}
		expired := w.NextStep()
		assert.Equalf(t, []string{"a"}, expired, "n=%d: key should have expired on the (n+1)th tick", n)
	}
}

func TestSet_StepsZeroIsNoOp(t *testing.T) {
	w := New[string](Unbounded)
	w.Set("a", Steps(0))
	for range 10 {
		assert.Empty(t, w.NextStep())
	}
	assert.Equal(t, 0, w.Len())
}

func TestSet_MultipleSetsCollapseToLastNumericAction(t *testing.T) {
	w := New[string](Unbounded)
	w.Set("a", Steps(10))
	w.Set("a", Steps(2))
	w.Set("a", Renew()) // Renew after an explicit Steps(n) keeps the Steps(n), per merge policy.
	w.NextStep()         // Applies pending: schedules "a" 2 steps out.
	assert.Empty(t, w.NextStep())
	expired := w.NextStep()
	assert.Equal(t, []string{"a"}, expired)
}

func TestSet_RenewExtendsByPriorInterval(t *testing.T) {
	w := New[string](Unbounded)
	w.Set("a", Steps(3))
	w.NextStep() // Schedules "a" 3 steps out.
	w.NextStep() // 1 elapsed.
	w.Set("a", Renew())
	w.NextStep() // Applies the renew: reschedules 3 steps from here again.
	assert.Contains(t, w.dueKeys(), "a") // Still alive: the renew kept it scheduled.
	for range 2 {
		assert.Empty(t, w.NextStep())
	}
	assert.Equal(t, []string{"a"}, w.NextStep())
}

func TestSet_RenewOnUnknownKeyIsSilentNoOp(t *testing.T) {
	w := New[string](Unbounded)
	w.Set("ghost", Renew())
	require.NotPanics(t, func() {
		expired := w.NextStep()
		assert.Empty(t, expired)
	})
	assert.Equal(t, 0, w.Len())
}

// TestNormalization_S6: a max_step=3 wheel whose bucket indices must rebase once
// current_step reaches the horizon, without disturbing eventual expiry timing for keys that
// straddle the rebase.
func TestNormalization_S6(t *testing.T) {
	w := New[string](3)

	w.Set("foo", Steps(1))
	w.Set("bar", Steps(4))

	assert.Empty(t, w.NextStep())                      // tick -> {}
	assert.Equal(t, []string{"foo"}, w.NextStep())      // tick -> {foo}
	assert.Empty(t, w.NextStep())                      // tick -> {} (normalization happens here)

	w.Set("foo", Steps(1))

	assert.Empty(t, w.NextStep()) // tick -> {}
	expired := w.NextStep()       // tick -> {foo, bar}
	assert.ElementsMatch(t, []string{"foo", "bar"}, expired)
}

// TestNormalization_NeverExceedsHorizon checks that for a key whose interval fits within the
// horizon, immediately after a normalization has run its bucket index and expires_at sit strictly
// below max_step.
func TestNormalization_NeverExceedsHorizon(t *testing.T) {
	const maxStep = 4
	w := New[string](maxStep)

	// Steps(4) is applied on tick 1 (due at tick 5), so the key is still live when tick 4 normalizes.
	w.Set("short", Steps(maxStep))

	for range maxStep { // Drive current_step up to the horizon, triggering exactly one normalization.
		w.NextStep()
	}

	for bucket := range w.buckets {
		assert.Lessf(t, bucket, uint64(maxStep), "bucket index %d must stay below max_step after normalization", bucket)
	}
	for _, d := range w.due {
		assert.Lessf(t, d.expiresAt, uint64(maxStep), "expires_at %d must stay below max_step after normalization", d.expiresAt)
	}
}

// TestNormalization_PreservesOvershootTiming: a Steps(n) with n > max_step is not clamped at Set
// time, so it overshoots the horizon and may still sit above max_step right after one
// normalization; eventual expiry timing is still exactly preserved (it just takes an extra lap of
// the wheel to bring the bucket index back under the horizon).
func TestNormalization_PreservesOvershootTiming(t *testing.T) {
	const maxStep = 4
	w := New[string](maxStep)
	w.Set("overshoot", Steps(9))

	// The interval (9) is counted from the tick that applies the pending Set (tick 1), so the key
	// becomes due at unbounded tick 1+9=10 and is reported expired on the 10th NextStep call,
	// regardless of how many normalizations happen along the way.
	for i := range 10 {
		expired := w.NextStep()
		if i < 9 {
			assert.Emptyf(t, expired, "tick %d: expired too early", i+1)
		} else {
			assert.Equal(t, []string{"overshoot"}, expired)
		}
	}
}

// dueKeys is a test helper exposing the set of currently-live keys, used to assert absence without
// reaching into unexported wheel internals from the assertion call site.
func (w *Wheel[K]) dueKeys() []K {
	keys := make([]K, 0, len(w.due))
	for k := range w.due {
		keys = append(keys, k)
	}
	return keys
}
