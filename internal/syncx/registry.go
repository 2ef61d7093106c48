// Package syncx provides extended synchronization primitives
package syncx

import "sync"

// Registry is a mutex-guarded map that remembers insertion order and holds at most max
// entries. When full, the oldest entry that evictable accepts is dropped.
type Registry[K comparable, V any] struct {
	mu        sync.RWMutex
	items     map[K]V
	order     []K
	max       int
	evictable func(V) bool
}

// NewRegistry creates a registry. max <= 0 means unbounded; a nil evictable allows any
// entry to be dropped.
func NewRegistry[K comparable, V any](max int, evictable func(V) bool) *Registry[K, V] {
	if evictable == nil {
		evictable = func(V) bool { return true }
	}
	return &Registry[K, V]{items: make(map[K]V), max: max, evictable: evictable}
}

// Put stores v under k. It reports false when the registry is full and nothing can be evicted.
func (r *Registry[K, V]) Put(k K, v V) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[k]; ok {
		r.items[k] = v
		return true
	}
	if r.max > 0 && len(r.items) >= r.max && !r.evictLocked() {
		return false
	}
	r.items[k] = v
	r.order = append(r.order, k)
	return true
}

func (r *Registry[K, V]) evictLocked() bool {
	for i, k := range r.order {
		if r.evictable(r.items[k]) {
			delete(r.items, k)
			r.order = append(r.order[:i], r.order[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the value under k.
func (r *Registry[K, V]) Get(k K) (V, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.items[k]
	return v, ok
}

// Update runs fn on the value under k while holding the write lock.
func (r *Registry[K, V]) Update(k K, fn func(*V)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.items[k]
	if !ok {
		return false
	}
	fn(&v)
	r.items[k] = v
	return true
}

// Values returns every value, oldest first.
func (r *Registry[K, V]) Values() []V {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]V, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.items[k])
	}
	return out
}

// Len returns the number of entries.
func (r *Registry[K, V]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
