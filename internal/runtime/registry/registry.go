// Package registry keeps the per-database event routers and sinks owned by
// a running service.
package registry

import (
	"sort"
	"strings"
	"sync"
)

// Registry maps database names to a value of type T. Names are matched
// case-insensitively.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Register stores value under db and returns the value it replaced, if any.
func (r *Registry[T]) Register(db string, value T) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalize(db)
	prev, ok := r.entries[key]
	r.entries[key] = value
	return prev, ok
}

// Get returns the value registered for db.
func (r *Registry[T]) Get(db string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[normalize(db)]
	return v, ok
}

// Remove unregisters db and returns the value that was registered.
func (r *Registry[T]) Remove(db string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalize(db)
	v, ok := r.entries[key]
	delete(r.entries, key)
	return v, ok
}

// Names returns the registered database names in lexical order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered databases.
func (r *Registry[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Drain empties the registry and calls fn for every value it held, in name
// order. fn runs without the lock held.
func (r *Registry[T]) Drain(fn func(db string, value T)) {
	r.mu.Lock()
	entries := r.entries
	r.entries = make(map[string]T)
	r.mu.Unlock()

	names := make([]string, 0, len(entries))
	for name := range entries {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if fn != nil {
			fn(name, entries[name])
		}
	}
}

func normalize(db string) string {
	return strings.ToLower(strings.TrimSpace(db))
}
