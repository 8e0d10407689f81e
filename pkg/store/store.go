// Package store defines the associative-store contract Cache adapts, and ships a default
// in-memory implementation. It generalizes the teacher repo's storage.KeyValueHolder
// (pkg/storage/kv.go in nobletooth/kiwi) — a string/string map with Get/Set/Delete/Close — to an
// arbitrary comparable K / any V, plus an Insert-if-absent primitive the facade's insert_new needs.
package store

import (
	"errors"
	"log/slog"
	"sync"
)

// ErrKeyNotFound mirrors storage.ErrKeyNotFound: the sentinel a Store returns from Get/Delete for an
// absent key.
var ErrKeyNotFound = errors.New("store: key was not found")

// Store is the external associative store Cache is a thin adapter over. It carries no durability,
// cross-process coherence, or transaction guarantees of its own: a Store is free to be as simple as
// an in-memory map.
type Store[K comparable, V any] interface {
	Get(key K) (V, error)
	Set(key K, value V) error
	// Insert sets key only if absent, returning ErrAlreadyPresent otherwise. Needed so
	// Cache's InsertNew can be atomic at the store layer too, not just at the row-lock layer.
	Insert(key K, value V) error
	Delete(key K) error
	Len() int
	Close() error
}

// ErrAlreadyPresent is returned by Insert when the key already has a value.
var ErrAlreadyPresent = errors.New("store: key already present")

var _ Store[string, string] = (*Map[string, string])(nil)

// Map is a sync.Map-backed Store, the default backing store for concache.Cache, mirroring
// storage.InMemoryKeyValueHolder's shape (including its Close log line).
type Map[K comparable, V any] struct {
	data sync.Map
	len  int
	mu   sync.Mutex // Guards len; sync.Map itself doesn't expose a cheap count.
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{}
}

func (m *Map[K, V]) Get(key K) (V, error) {
	v, ok := m.data.Load(key)
	if !ok {
		var zero V
		return zero, ErrKeyNotFound
	}
	return v.(V), nil
}

func (m *Map[K, V]) Set(key K, value V) error {
	m.mu.Lock()
	if _, existed := m.data.Swap(key, value); !existed {
		m.len++
	}
	m.mu.Unlock()
	return nil
}

func (m *Map[K, V]) Insert(key K, value V) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, existed := m.data.Load(key); existed {
		return ErrAlreadyPresent
	}
	m.data.Store(key, value)
	m.len++
	return nil
}

func (m *Map[K, V]) Delete(key K) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, existed := m.data.LoadAndDelete(key); !existed {
		return ErrKeyNotFound
	}
	m.len--
	return nil
}

func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.len
}

func (m *Map[K, V]) Close() error {
	slog.Info("Closing in-memory store.")
	return nil
}
