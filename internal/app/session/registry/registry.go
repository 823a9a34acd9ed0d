// Package registry provides a concurrency-safe map of live entries keyed by ID.
package registry

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotFound  = errors.New("entry not found")
	ErrDuplicate = errors.New("entry already registered")
	ErrFull      = errors.New("registry is full")
)

// Registry manages entries with thread-safe access.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
	limit   int
}

// New creates a registry holding at most limit entries; zero means unlimited.
func New[T any](limit int) *Registry[T] {
	return &Registry[T]{
		entries: make(map[string]T),
		limit:   limit,
	}
}

// Add registers an entry under id.
func (r *Registry[T]) Add(id string, entry T) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; ok {
		return errors.Wrapf(ErrDuplicate, "id=%s", id)
	}
	if r.limit > 0 && len(r.entries) >= r.limit {
		return ErrFull
	}
	r.entries[id] = entry
	return nil
}

// Get retrieves an entry by ID.
func (r *Registry[T]) Get(id string) (T, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		var zero T
		return zero, ErrNotFound
	}
	return entry, nil
}

// Remove deletes an entry and returns it.
func (r *Registry[T]) Remove(id string) (T, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if ok {
		delete(r.entries, id)
	}
	return entry, ok
}

// All returns all entries ordered by ID.
func (r *Registry[T]) All() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	result := make([]T, 0, len(ids))
	for _, id := range ids {
		result = append(result, r.entries[id])
	}
	return result
}

// Count returns the number of entries.
func (r *Registry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
