// Package observer provides a typed listener registry with detachment handles.
package observer

import (
	"sort"
	"sync"
)

// Registry holds listeners for values of type T.
// Listeners are invoked synchronously on the notifying goroutine.
type Registry[T any] struct {
	mu        sync.Mutex
	next      uint64
	listeners map[uint64]func(T)
}

// Add registers fn and returns a function that detaches it.
// Calling the detach function more than once is safe.
func (r *Registry[T]) Add(fn func(T)) (detach func()) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.listeners == nil {
		r.listeners = make(map[uint64]func(T))
	}
	r.next++
	id := r.next
	r.listeners[id] = fn

	return func() {
		r.mu.Lock()
		delete(r.listeners, id)
		r.mu.Unlock()
	}
}

// Notify delivers v to every registered listener in registration order.
func (r *Registry[T]) Notify(v T) {
	for _, fn := range r.snapshot() {
		fn(v)
	}
}

// Len returns the number of registered listeners.
func (r *Registry[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// snapshot copies the listener set so listeners may detach during delivery.
func (r *Registry[T]) snapshot() []func(T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]uint64, 0, len(r.listeners))
	for id := range r.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	fns := make([]func(T), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, r.listeners[id])
	}
	return fns
}
