package keyedpager

import "sync"

// Observable is a minimal observable value holder: a current value plus a set
// of subscribers notified on every Set. There is no dependency tracking and
// no deduplication of equal values.
type Observable[T any] struct {
	mu    sync.Mutex
	value T
	subs  map[int]func(T)
	next  int
}

// NewObservable creates an Observable holding initial.
func NewObservable[T any](initial T) *Observable[T] {
	return &Observable[T]{value: initial}
}

// Get returns the current value.
func (o *Observable[T]) Get() T {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value
}

// Set stores v and notifies subscribers. Notifications run on the caller's
// goroutine, outside the holder's lock; subscribers registered concurrently
// with a Set may or may not observe that particular value.
func (o *Observable[T]) Set(v T) {
	o.mu.Lock()
	o.value = v
	fns := make([]func(T), 0, len(o.subs))
	for _, fn := range o.subs {
		fns = append(fns, fn)
	}
	o.mu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

// Subscribe registers fn to run on every subsequent Set and returns a cancel
// function that removes the registration.
func (o *Observable[T]) Subscribe(fn func(T)) (cancel func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]func(T))
	}
	id := o.next
	o.next++
	o.subs[id] = fn
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

// Feed is an ordered publish/subscribe stream of events. Publish delivers the
// event to every active subscriber before returning, and events are delivered
// to each subscriber in publish order. A cancelled subscription is never
// invoked again, even when the cancellation races with a Publish.
type Feed[E any] struct {
	mu   sync.Mutex
	subs map[int]func(E)
	next int
}

// NewFeed creates an empty feed.
func NewFeed[E any]() *Feed[E] {
	return &Feed[E]{subs: make(map[int]func(E))}
}

// Subscribe registers fn for every subsequent Publish and returns a cancel
// function. Cancel blocks until any in-flight delivery has finished, so after
// it returns fn will not run again.
func (f *Feed[E]) Subscribe(fn func(E)) (cancel func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.subs[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}

// Publish delivers e to all active subscribers on the caller's goroutine.
// The feed's lock is held for the whole delivery, which is what serializes
// concurrent publishers into a single arrival order. Subscribers must not
// call back into the feed.
func (f *Feed[E]) Publish(e E) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, fn := range f.subs {
		fn(e)
	}
}
