// Package registry holds the live sessions of a server.
//
// A Registry maps a session key to the session that owns it. Insertion is
// atomic: when two sessions race for the same key exactly one of them wins.
// Removal is value-checked so that a session can only remove its own entry,
// never a different session that happens to share the key.
package registry

import (
	"sync"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// Observer is notified of registry membership changes. Callbacks run on the
// goroutine that performed the change and must not block.
type Observer[V any] interface {
	OnInsert(key uint64, v V)
	OnRemove(key uint64, v V)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs[V any] struct {
	Insert func(key uint64, v V)
	Remove func(key uint64, v V)
}

// OnInsert calls f.Insert if set.
func (f ObserverFuncs[V]) OnInsert(key uint64, v V) {
	if f.Insert != nil {
		f.Insert(key, v)
	}
}

// OnRemove calls f.Remove if set.
func (f ObserverFuncs[V]) OnRemove(key uint64, v V) {
	if f.Remove != nil {
		f.Remove(key, v)
	}
}

// Registry is a concurrent set of values keyed by uint64.
type Registry[V comparable] struct {
	items cmap.ConcurrentMap[uint64, V]

	mu        sync.RWMutex
	observers []Observer[V]
}

// New creates an empty registry.
func New[V comparable]() *Registry[V] {
	return &Registry[V]{
		items: cmap.NewWithCustomShardingFunction[uint64, V](shard),
	}
}

// shard spreads sequential keys evenly over the map shards.
func shard(key uint64) uint32 {
	key ^= key >> 33
	key *= 0xff51afd7ed558ccd
	key ^= key >> 33
	return uint32(key)
}

// Observe registers an observer for membership changes.
func (r *Registry[V]) Observe(o Observer[V]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, o)
}

// TryInsert stores v under key if the key is free and reports the outcome
// to onResult. Exactly one of several concurrent inserts for the same key
// succeeds. onResult may be nil.
func (r *Registry[V]) TryInsert(key uint64, v V, onResult func(inserted bool)) {
	inserted := r.items.SetIfAbsent(key, v)
	if inserted {
		r.notify(func(o Observer[V]) { o.OnInsert(key, v) })
	}
	if onResult != nil {
		onResult(inserted)
	}
}

// Remove deletes the entry for key only if it currently holds v.
// It reports whether an entry was removed.
func (r *Registry[V]) Remove(key uint64, v V) bool {
	removed := r.items.RemoveCb(key, func(_ uint64, cur V, exists bool) bool {
		return exists && cur == v
	})
	if removed {
		r.notify(func(o Observer[V]) { o.OnRemove(key, v) })
	}
	return removed
}

// Get returns the value stored under key.
func (r *Registry[V]) Get(key uint64) (V, bool) {
	return r.items.Get(key)
}

// Contains reports whether key is present and holds v.
func (r *Registry[V]) Contains(key uint64, v V) bool {
	cur, ok := r.items.Get(key)
	return ok && cur == v
}

// Len returns the number of entries.
func (r *Registry[V]) Len() int {
	return r.items.Count()
}

// Keys returns a snapshot of the current keys.
func (r *Registry[V]) Keys() []uint64 {
	return r.items.Keys()
}

// Range calls fn for a snapshot of the entries until fn returns false.
// fn may modify the registry.
func (r *Registry[V]) Range(fn func(key uint64, v V) bool) {
	for key, v := range r.items.Items() {
		if !fn(key, v) {
			return
		}
	}
}

func (r *Registry[V]) notify(fn func(Observer[V])) {
	r.mu.RLock()
	obs := r.observers
	r.mu.RUnlock()

	for _, o := range obs {
		fn(o)
	}
}
