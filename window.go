package keyedpager

import (
	"sort"
	"sync"
)

// Entry is a single key/item pair of a window snapshot.
type Entry[K Ordered, T any] struct {
	Key  K
	Item T
}

// Window is the materialized ordered mapping from key to item. Keys impose
// the order; insertion order is irrelevant. Keys are unique and an insert for
// an existing key overwrites its item.
//
// A window is owned by exactly one pager, which is its only writer; consumers
// read through the exported accessors. All accessors are safe for concurrent
// use.
type Window[K Ordered, T any] struct {
	mu    sync.RWMutex
	cmp   Comparator[K]
	keys  []K
	items map[K]T
}

// NewWindow creates an empty window ordered by cmp. A nil cmp means the
// natural order of the key type. cmp must be a total order consistent with
// key equality: cmp(a, b) == 0 only when a == b.
func NewWindow[K Ordered, T any](cmp Comparator[K]) *Window[K, T] {
	if cmp == nil {
		cmp = NaturalOrder[K]()
	}
	return &Window[K, T]{cmp: cmp, items: make(map[K]T)}
}

// Len returns the number of items currently materialized.
func (w *Window[K, T]) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.keys)
}

// Get returns the item stored under key, if any.
func (w *Window[K, T]) Get(key K) (T, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	item, ok := w.items[key]
	return item, ok
}

// Keys returns the keys in window order.
func (w *Window[K, T]) Keys() []K {
	w.mu.RLock()
	defer w.mu.RUnlock()
	keys := make([]K, len(w.keys))
	copy(keys, w.keys)
	return keys
}

// Items returns the items in window order.
func (w *Window[K, T]) Items() []T {
	w.mu.RLock()
	defer w.mu.RUnlock()
	items := make([]T, len(w.keys))
	for i, k := range w.keys {
		items[i] = w.items[k]
	}
	return items
}

// Snapshot returns the key/item pairs in window order.
func (w *Window[K, T]) Snapshot() []Entry[K, T] {
	w.mu.RLock()
	defer w.mu.RUnlock()
	entries := make([]Entry[K, T], len(w.keys))
	for i, k := range w.keys {
		entries[i] = Entry[K, T]{Key: k, Item: w.items[k]}
	}
	return entries
}

// put inserts or overwrites the item under key, keeping the key order.
func (w *Window[K, T]) put(key K, item T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.items[key]; !ok {
		i := sort.Search(len(w.keys), func(i int) bool { return w.cmp(w.keys[i], key) >= 0 })
		w.keys = append(w.keys, key)
		copy(w.keys[i+1:], w.keys[i:])
		w.keys[i] = key
	}
	w.items[key] = item
}

// remove erases key from the window. Removing an absent key is a no-op.
func (w *Window[K, T]) remove(key K) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.items[key]; !ok {
		return
	}
	delete(w.items, key)
	i := sort.Search(len(w.keys), func(i int) bool { return w.cmp(w.keys[i], key) >= 0 })
	w.keys = append(w.keys[:i], w.keys[i+1:]...)
}
