package keyedpager

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultFetchBound bounds the number of source fetches a single Next or
// Previous call performs while the window size stays unchanged. A fetch may
// legitimately yield zero new items (every returned item was already present)
// while the source still reports further pages; the bound absorbs that
// without looping forever against an exhausted or persistently empty source.
const DefaultFetchBound = 10

// Paginated is the contract shared by Pager and TransformingPager.
// K is the key type ordering the window, T the exposed item type.
type Paginated[K Ordered, T any] interface {
	// EnsureInitialized performs the initial load exactly once; later calls
	// await the same in-flight work. See Pager.EnsureInitialized.
	EnsureInitialized(ctx context.Context) error
	// Next loads at least one further page in the forward direction.
	Next(ctx context.Context) error
	// Previous loads at least one further page in the backward direction.
	Previous(ctx context.Context) error
	// Dispose cancels the change-feed subscription and releases the source.
	Dispose()

	// Window is the materialized ordered collection. Read-only for callers.
	Window() *Window[K, T]
	// Status is the pager's lifecycle state.
	Status() *Observable[Status]

	HasNext() bool
	HasPrevious() bool
	NextLoading() bool
	PreviousLoading() bool
}

// Seed produces an initial batch of entries for the window. Resolution may
// require I/O; the pager runs seeds during EnsureInitialized and merges each
// result into the window as it completes.
type Seed[K Ordered, T any] func(ctx context.Context) (map[K]T, error)

// StaticSeed wraps already-resolved entries as a Seed.
func StaticSeed[K Ordered, T any](entries map[K]T) Seed[K, T] {
	return func(context.Context) (map[K]T, error) {
		return entries, nil
	}
}

// Option configures a Pager or TransformingPager.
type Option func(*options)

type options struct {
	fetchBound int
	logger     logrus.FieldLogger
}

func newOptions(opts []Option) options {
	o := options{
		fetchBound: DefaultFetchBound,
		logger:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithFetchBound overrides the per-call fetch bound used by Pager.Next and
// Pager.Previous. Values below 1 are ignored.
func WithFetchBound(n int) Option {
	return func(o *options) {
		if n >= 1 {
			o.fetchBound = n
		}
	}
}

// WithLogger routes the pager's diagnostics to logger instead of the logrus
// standard logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// Pager materializes an ordered window over a source whose value type equals
// the exposed item type. It owns the window and the feed subscription: every
// change event is folded into the window for the lifetime of the
// subscription, independent of Next/Previous activity.
type Pager[K Ordered, C any, T any] struct {
	source       Source[K, C, T]
	window       *Window[K, T]
	status       *Observable[Status]
	opts         options
	seeds        []Seed[K, T]
	anchorKey    *K
	anchorCursor *C

	mu          sync.Mutex
	started     bool
	group       *errgroup.Group
	unsubscribe func()
	nextBusy    bool
	prevBusy    bool
	disposed    bool
}

var _ Paginated[int, string] = (*Pager[int, string, string])(nil)

// NewPager constructs a pager. source may be nil: the pager then serves only
// the seeded entries and every flag reads false. anchorKey and anchorCursor
// position the initial fetch; both may be nil.
func NewPager[K Ordered, C any, T any](
	source Source[K, C, T],
	seeds []Seed[K, T],
	anchorKey *K,
	anchorCursor *C,
	opts ...Option,
) *Pager[K, C, T] {
	return &Pager[K, C, T]{
		source:       source,
		window:       NewWindow[K, T](nil),
		status:       NewObservable(StatusEmpty),
		opts:         newOptions(opts),
		seeds:        seeds,
		anchorKey:    anchorKey,
		anchorCursor: anchorCursor,
	}
}

// EnsureInitialized performs the initial load exactly once. The first call
// resolves the seeds, subscribes to the source's change feed and issues the
// anchored fetch; every later call, including concurrent ones, awaits the
// same in-flight task group without triggering new fetches. With no seeds and
// no source the status flips to Success immediately.
//
// A failed seed or anchored fetch is returned to the caller and leaves the
// status at Loading or LoadingMore.
func (p *Pager[K, C, T]) EnsureInitialized(ctx context.Context) error {
	p.mu.Lock()
	if p.started {
		g := p.group
		p.mu.Unlock()
		if g == nil {
			return nil
		}
		return g.Wait()
	}
	p.started = true

	g, gctx := errgroup.WithContext(ctx)
	tasks := 0
	for _, seed := range p.seeds {
		seed := seed
		g.Go(func() error {
			entries, err := seed(gctx)
			if err != nil {
				return fmt.Errorf("resolve seed: %w", err)
			}
			for k, v := range entries {
				p.window.put(k, v)
			}
			return nil
		})
		tasks++
	}
	if p.source != nil {
		p.unsubscribe = p.source.Changes().Subscribe(p.apply)
		g.Go(func() error {
			if err := p.source.Around(gctx, p.anchorKey, p.anchorCursor); err != nil {
				return fmt.Errorf("anchored fetch: %w", err)
			}
			return nil
		})
		tasks++
	}
	if tasks == 0 {
		p.status.Set(StatusSuccess)
		p.mu.Unlock()
		return nil
	}
	p.group = g
	if p.window.Len() == 0 {
		p.status.Set(StatusLoading)
	} else {
		p.status.Set(StatusLoadingMore)
	}
	p.mu.Unlock()

	if err := g.Wait(); err != nil {
		return err
	}
	p.status.Set(StatusSuccess)
	p.opts.logger.WithField("items", p.window.Len()).Debug("pager initialized")
	return nil
}

// apply folds one change event into the window. This is the sole feed-driven
// writer and runs until the subscription is cancelled by Dispose.
func (p *Pager[K, C, T]) apply(ev ChangeEvent[K, T]) {
	switch ev.Op {
	case OpAdded, OpUpdated:
		p.window.put(ev.Key, ev.Value)
	case OpRemoved:
		p.window.remove(ev.Key)
	}
}

// Next loads further pages in the forward direction until the window grows,
// the source runs out of forward pages, or the fetch bound is reached. It is
// a no-op when no source is attached or a forward load is already in flight.
//
// A failed fetch is returned as-is and leaves the status at LoadingMore; the
// caller owns the recovery policy.
func (p *Pager[K, C, T]) Next(ctx context.Context) error {
	if p.source == nil {
		return nil
	}
	p.mu.Lock()
	if p.nextBusy {
		p.mu.Unlock()
		return nil
	}
	p.nextBusy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.nextBusy = false
		p.mu.Unlock()
	}()

	if p.status.Get() == StatusSuccess {
		p.status.Set(StatusLoadingMore)
	}
	before := p.window.Len()
	for i := 0; i < p.opts.fetchBound; i++ {
		if err := p.source.Next(ctx); err != nil {
			return fmt.Errorf("next page: %w", err)
		}
		if p.window.Len() != before || !p.source.HasNext().Get() {
			break
		}
	}
	p.status.Set(StatusSuccess)
	return nil
}

// Previous is the backward counterpart of Next.
func (p *Pager[K, C, T]) Previous(ctx context.Context) error {
	if p.source == nil {
		return nil
	}
	p.mu.Lock()
	if p.prevBusy {
		p.mu.Unlock()
		return nil
	}
	p.prevBusy = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.prevBusy = false
		p.mu.Unlock()
	}()

	if p.status.Get() == StatusSuccess {
		p.status.Set(StatusLoadingMore)
	}
	before := p.window.Len()
	for i := 0; i < p.opts.fetchBound; i++ {
		if err := p.source.Previous(ctx); err != nil {
			return fmt.Errorf("previous page: %w", err)
		}
		if p.window.Len() != before || !p.source.HasPrevious().Get() {
			break
		}
	}
	p.status.Set(StatusSuccess)
	return nil
}

// Dispose cancels the change-feed subscription, so no further feed-driven
// mutation reaches the window, then releases the source. Safe to call more
// than once.
func (p *Pager[K, C, T]) Dispose() {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	unsubscribe := p.unsubscribe
	p.unsubscribe = nil
	p.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if p.source != nil {
		p.source.Dispose()
	}
}

// Window returns the materialized ordered collection. Read-only for callers.
func (p *Pager[K, C, T]) Window() *Window[K, T] { return p.window }

// Status returns the pager's lifecycle state holder.
func (p *Pager[K, C, T]) Status() *Observable[Status] { return p.status }

// HasNext reports whether the source has a further forward page. False when
// no source is attached.
func (p *Pager[K, C, T]) HasNext() bool {
	if p.source == nil {
		return false
	}
	return p.source.HasNext().Get()
}

// HasPrevious reports whether the source has a further backward page. False
// when no source is attached.
func (p *Pager[K, C, T]) HasPrevious() bool {
	if p.source == nil {
		return false
	}
	return p.source.HasPrevious().Get()
}

// NextLoading reports whether the source has a forward fetch in flight.
func (p *Pager[K, C, T]) NextLoading() bool {
	if p.source == nil {
		return false
	}
	return p.source.NextLoading().Get()
}

// PreviousLoading reports whether the source has a backward fetch in flight.
func (p *Pager[K, C, T]) PreviousLoading() bool {
	if p.source == nil {
		return false
	}
	return p.source.PreviousLoading().Get()
}
