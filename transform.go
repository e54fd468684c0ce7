package keyedpager

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Transform rebuilds the exposed item from a source value. previous is the
// item currently stored under the same key, nil when absent; a transform may
// use it to reconstruct the item incrementally from successive source values
// instead of recomputing from scratch. It may block; ctx is cancelled when
// the pager is disposed.
type Transform[V any, T any] func(ctx context.Context, previous *T, data V) (T, error)

// TransformingPager is a pager for sources whose value type V differs from
// the exposed item type T. Every value arriving on the change feed passes
// through the transform before it reaches the window.
//
// Unlike Pager it takes no seeds, and Next/Previous forward a single fetch to
// the source without the bounded retry loop or status transitions: after the
// initial load the source's own loading flags are the caller's progress
// signal.
type TransformingPager[K Ordered, C any, V any, T any] struct {
	source       Source[K, C, V]
	transform    Transform[V, T]
	window       *Window[K, T]
	status       *Observable[Status]
	opts         options
	anchorKey    *K
	anchorCursor *C

	// feedCtx bounds transforms running inside the change-feed handler; it is
	// cancelled by Dispose.
	feedCtx context.Context
	cancel  context.CancelFunc

	mu          sync.Mutex
	started     bool
	group       *errgroup.Group
	unsubscribe func()
	nextBusy    bool
	prevBusy    bool
	disposed    bool
}

var _ Paginated[int, string] = (*TransformingPager[int, string, []byte, string])(nil)

// NewTransformingPager constructs a transforming pager. source may be nil,
// transform must not be.
func NewTransformingPager[K Ordered, C any, V any, T any](
	source Source[K, C, V],
	transform Transform[V, T],
	anchorKey *K,
	anchorCursor *C,
	opts ...Option,
) *TransformingPager[K, C, V, T] {
	if transform == nil {
		panic("keyedpager: nil transform")
	}
	feedCtx, cancel := context.WithCancel(context.Background())
	return &TransformingPager[K, C, V, T]{
		source:       source,
		transform:    transform,
		window:       NewWindow[K, T](nil),
		status:       NewObservable(StatusEmpty),
		opts:         newOptions(opts),
		anchorKey:    anchorKey,
		anchorCursor: anchorCursor,
		feedCtx:      feedCtx,
		cancel:       cancel,
	}
}

// EnsureInitialized subscribes to the change feed and issues the single
// anchored fetch, exactly once; later calls await the same in-flight fetch.
// With no source attached the status flips to Success immediately.
func (t *TransformingPager[K, C, V, T]) EnsureInitialized(ctx context.Context) error {
	t.mu.Lock()
	if t.started {
		g := t.group
		t.mu.Unlock()
		if g == nil {
			return nil
		}
		return g.Wait()
	}
	t.started = true

	if t.source == nil {
		t.status.Set(StatusSuccess)
		t.mu.Unlock()
		return nil
	}
	t.unsubscribe = t.source.Changes().Subscribe(t.apply)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := t.source.Around(gctx, t.anchorKey, t.anchorCursor); err != nil {
			return fmt.Errorf("anchored fetch: %w", err)
		}
		return nil
	})
	t.group = g
	if t.window.Len() == 0 {
		t.status.Set(StatusLoading)
	} else {
		t.status.Set(StatusLoadingMore)
	}
	t.mu.Unlock()

	if err := g.Wait(); err != nil {
		return err
	}
	t.status.Set(StatusSuccess)
	t.opts.logger.WithField("items", t.window.Len()).Debug("transforming pager initialized")
	return nil
}

// apply folds one change event into the window, routing added and updated
// values through the transform. A failing transform drops that single event;
// later events are still processed.
func (t *TransformingPager[K, C, V, T]) apply(ev ChangeEvent[K, V]) {
	switch ev.Op {
	case OpAdded, OpUpdated:
		var previous *T
		if current, ok := t.window.Get(ev.Key); ok {
			previous = &current
		}
		item, err := t.transform(t.feedCtx, previous, ev.Value)
		if err != nil {
			t.opts.logger.WithField("key", ev.Key).WithError(err).Warn("transform failed, event dropped")
			return
		}
		t.window.put(ev.Key, item)
	case OpRemoved:
		t.window.remove(ev.Key)
	}
}

// Next forwards a single forward fetch to the source. No-op when no source is
// attached or a forward load is already in flight.
func (t *TransformingPager[K, C, V, T]) Next(ctx context.Context) error {
	if t.source == nil {
		return nil
	}
	t.mu.Lock()
	if t.nextBusy {
		t.mu.Unlock()
		return nil
	}
	t.nextBusy = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.nextBusy = false
		t.mu.Unlock()
	}()

	if err := t.source.Next(ctx); err != nil {
		return fmt.Errorf("next page: %w", err)
	}
	return nil
}

// Previous is the backward counterpart of Next.
func (t *TransformingPager[K, C, V, T]) Previous(ctx context.Context) error {
	if t.source == nil {
		return nil
	}
	t.mu.Lock()
	if t.prevBusy {
		t.mu.Unlock()
		return nil
	}
	t.prevBusy = true
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.prevBusy = false
		t.mu.Unlock()
	}()

	if err := t.source.Previous(ctx); err != nil {
		return fmt.Errorf("previous page: %w", err)
	}
	return nil
}

// Dispose cancels the change-feed subscription and any in-flight transform,
// then releases the source. Safe to call more than once.
func (t *TransformingPager[K, C, V, T]) Dispose() {
	t.mu.Lock()
	if t.disposed {
		t.mu.Unlock()
		return
	}
	t.disposed = true
	unsubscribe := t.unsubscribe
	t.unsubscribe = nil
	t.mu.Unlock()

	t.cancel()
	if unsubscribe != nil {
		unsubscribe()
	}
	if t.source != nil {
		t.source.Dispose()
	}
}

// Window returns the materialized ordered collection. Read-only for callers.
func (t *TransformingPager[K, C, V, T]) Window() *Window[K, T] { return t.window }

// Status returns the pager's lifecycle state holder.
func (t *TransformingPager[K, C, V, T]) Status() *Observable[Status] { return t.status }

// HasNext reports whether the source has a further forward page. False when
// no source is attached.
func (t *TransformingPager[K, C, V, T]) HasNext() bool {
	if t.source == nil {
		return false
	}
	return t.source.HasNext().Get()
}

// HasPrevious reports whether the source has a further backward page. False
// when no source is attached.
func (t *TransformingPager[K, C, V, T]) HasPrevious() bool {
	if t.source == nil {
		return false
	}
	return t.source.HasPrevious().Get()
}

// NextLoading reports whether the source has a forward fetch in flight.
func (t *TransformingPager[K, C, V, T]) NextLoading() bool {
	if t.source == nil {
		return false
	}
	return t.source.NextLoading().Get()
}

// PreviousLoading reports whether the source has a backward fetch in flight.
func (t *TransformingPager[K, C, V, T]) PreviousLoading() bool {
	if t.source == nil {
		return false
	}
	return t.source.PreviousLoading().Get()
}
