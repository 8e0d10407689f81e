package cache

import (
	"google.golang.org/protobuf/types/known/timestamppb"
)

// EventKind distinguishes the two notifications a cache callback can receive.
type EventKind uint8

const (
	EventUpdate EventKind = iota
	EventDelete
)

// Event is delivered synchronously, on the writer's (or the owner loop's, for sweep-driven deletes)
// execution context, to the configured callback. ObservedAt uses the protobuf well-known Timestamp
// type rather than a bare time.Time, the same choice the teacher repo's config package makes when it
// needs to carry a timestamp across a serialization boundary (pkg/config/config.go's handling of
// google.protobuf.Timestamp) — here the "boundary" is a callback that may itself forward the event
// onto a wire protocol.
type Event[K comparable, V any] struct {
	Kind       EventKind
	CacheID    string
	Key        K
	Value      V // Zero value for EventDelete.
	ObservedAt *timestamppb.Timestamp
}

func newUpdateEvent[K comparable, V any](cacheID string, k K, v V, now *timestamppb.Timestamp) Event[K, V] {
	return Event[K, V]{Kind: EventUpdate, CacheID: cacheID, Key: k, Value: v, ObservedAt: now}
}

func newDeleteEvent[K comparable, V any](cacheID string, k K, now *timestamppb.Timestamp) Event[K, V] {
	return Event[K, V]{Kind: EventDelete, CacheID: cacheID, Key: k, ObservedAt: now}
}
