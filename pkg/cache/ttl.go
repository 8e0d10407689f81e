package cache

import "github.com/Joe-noh/concache/pkg/wheel"

// TTLKind distinguishes the four ways a write can affect a key's expiry: Default | NoUpdate | Renew
// | Steps(n).
type TTLKind uint8

const (
	// TTLDefault registers the cache's configured default TTL on a write.
	TTLDefault TTLKind = iota
	// TTLNoUpdate leaves whatever expiry the key already has untouched.
	TTLNoUpdate
	// TTLRenew extends the key's life by its previously recorded interval.
	TTLRenew
	// TTLSteps schedules (or reschedules) the key to expire in exactly Steps ticks. Steps(0) registers
	// no expiry; it does not cancel an expiry the key already has.
	TTLSteps
)

// TTLSpec is the per-write TTL directive carried by Item.
type TTLSpec struct {
	Kind  TTLKind
	Steps uint64 // Only meaningful when Kind == TTLSteps.
}

func DefaultTTL() TTLSpec       { return TTLSpec{Kind: TTLDefault} }
func NoUpdateTTL() TTLSpec      { return TTLSpec{Kind: TTLNoUpdate} }
func RenewTTL() TTLSpec         { return TTLSpec{Kind: TTLRenew} }
func StepsTTL(n uint64) TTLSpec { return TTLSpec{Kind: TTLSteps, Steps: n} }

// IsValidTTLKind reports whether kind is one of the four defined TTLKind values. Used to detect an
// updater callback that fabricated a malformed Item.
func IsValidTTLKind(kind TTLKind) bool {
	return kind <= TTLSteps
}

// Item wraps a stored value with an explicit TTL directive.
type Item[V any] struct {
	Value V
	TTL   TTLSpec
}

// wheelAction translates a TTLSpec into the wheel.TTLAction the owner loop should enqueue, given the
// cache's configured default TTL in steps. Returns ok=false when no wheel interaction is needed
// (NoUpdate): the owner loop must not be contacted in that case.
func (spec TTLSpec) wheelAction(defaultSteps uint64) (action wheel.TTLAction, ok bool) {
	switch spec.Kind {
	case TTLDefault:
		return wheel.Steps(defaultSteps), true
	case TTLNoUpdate:
		return wheel.TTLAction{}, false
	case TTLRenew:
		return wheel.Renew(), true
	case TTLSteps:
		return wheel.Steps(spec.Steps), true
	default:
		return wheel.TTLAction{}, false
	}
}
