// Package registry resolves a cache reference — a raw handle, a process-local name, a global name,
// or a (module, name) pair — to the underlying *cache.Cache. It generalizes the teacher repo's
// single hardcoded singleton
// (pkg/storage/block_cache.go's sync.Once-guarded getSharedCache) into a named registry that can
// hold many.
package registry

import (
	"fmt"
	"sync"

	"github.com/Joe-noh/concache/pkg/cache"
)

// globalPrefix marks a name as resolved through the process-wide registry rather than a
// caller-supplied local one.
const globalPrefix = "global:"

// Registry is a named table of cache handles, safe for concurrent use. The zero value is usable.
type Registry[K comparable, V any] struct {
	mu     sync.RWMutex
	caches map[string]*cache.Cache[K, V]
}

// New builds an empty process-local Registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{caches: make(map[string]*cache.Cache[K, V])}
}

// globalRegistries backs Global: one singleton Registry per distinct (K,V) instantiation, lazily
// constructed the same way BlockCache's getSharedCache is (pkg/storage/block_cache.go's
// sync.Once-guarded singleton), generalized from one hardcoded instance to a map keyed by type.
var (
	globalRegistriesMu sync.Mutex
	globalRegistries   = map[string]any{}
)

// Global returns the process-wide Registry for cache handles named "global:...". Each distinct
// (K,V) instantiation gets its own singleton, created on first use.
func Global[K comparable, V any]() *Registry[K, V] {
	key := fmt.Sprintf("%T", (*Registry[K, V])(nil))
	globalRegistriesMu.Lock()
	defer globalRegistriesMu.Unlock()
	if existing, ok := globalRegistries[key]; ok {
		return existing.(*Registry[K, V])
	}
	reg := New[K, V]()
	globalRegistries[key] = reg
	return reg
}

// Register binds name to c in r, so r.Resolve(name) finds it. When r is the registry returned by
// Global, Resolve("global:"+name) on any Registry of the same (K,V) also finds it.
func (r *Registry[K, V]) Register(name string, c *cache.Cache[K, V]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches[name] = c
}

// RegisterModule binds (module, name) as a single qualified name.
func (r *Registry[K, V]) RegisterModule(module, name string, c *cache.Cache[K, V]) {
	r.Register(qualify(module, name), c)
}

// Unregister removes name, if present.
func (r *Registry[K, V]) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.caches, name)
}

// Resolve looks up name in r. If name has the "global:" prefix, the lookup instead goes through
// this (K,V) instantiation's process-wide Registry, regardless of r.
func (r *Registry[K, V]) Resolve(name string) (*cache.Cache[K, V], bool) {
	if rest, ok := stripGlobalPrefix(name); ok {
		return Global[K, V]().lookupLocal(rest)
	}
	return r.lookupLocal(name)
}

// ResolveModule looks up a (module, name) qualified handle.
func (r *Registry[K, V]) ResolveModule(module, name string) (*cache.Cache[K, V], bool) {
	return r.Resolve(qualify(module, name))
}

func (r *Registry[K, V]) lookupLocal(name string) (*cache.Cache[K, V], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.caches[name]
	return c, ok
}

func qualify(module, name string) string { return module + "/" + name }

func stripGlobalPrefix(name string) (string, bool) {
	if len(name) > len(globalPrefix) && name[:len(globalPrefix)] == globalPrefix {
		return name[len(globalPrefix):], true
	}
	return "", false
}
