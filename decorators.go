package keyedpager

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// passthroughSource delegates the observable and feed surface of a Source so
// that decorators only have to intercept the fetch operations.
type passthroughSource[K Ordered, C any, V any] struct {
	inner Source[K, C, V]
}

func (p passthroughSource[K, C, V]) HasNext() *Observable[bool]         { return p.inner.HasNext() }
func (p passthroughSource[K, C, V]) HasPrevious() *Observable[bool]     { return p.inner.HasPrevious() }
func (p passthroughSource[K, C, V]) NextLoading() *Observable[bool]     { return p.inner.NextLoading() }
func (p passthroughSource[K, C, V]) PreviousLoading() *Observable[bool] { return p.inner.PreviousLoading() }
func (p passthroughSource[K, C, V]) Changes() *Feed[ChangeEvent[K, V]]  { return p.inner.Changes() }
func (p passthroughSource[K, C, V]) Dispose()                           { p.inner.Dispose() }

// LoggingSource wraps a Source and logs every fetch with its duration.
type LoggingSource[K Ordered, C any, V any] struct {
	passthroughSource[K, C, V]
	logger logrus.FieldLogger
}

var _ Source[int, int, string] = (*LoggingSource[int, int, string])(nil)

// NewLoggingSource creates a new LoggingSource.
// If logger is nil, the logrus standard logger is used.
func NewLoggingSource[K Ordered, C any, V any](source Source[K, C, V], logger logrus.FieldLogger) *LoggingSource[K, C, V] {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LoggingSource[K, C, V]{
		passthroughSource: passthroughSource[K, C, V]{inner: source},
		logger:            logger,
	}
}

func (l *LoggingSource[K, C, V]) log(op string, start time.Time, err error) {
	entry := l.logger.WithFields(logrus.Fields{
		"op":      op,
		"elapsed": time.Since(start),
	})
	if err != nil {
		entry.WithError(err).Warn("fetch failed")
		return
	}
	entry.Debug("fetch done")
}

// Around performs the anchored fetch and logs the outcome.
func (l *LoggingSource[K, C, V]) Around(ctx context.Context, key *K, cursor *C) error {
	start := time.Now()
	err := l.inner.Around(ctx, key, cursor)
	l.log("around", start, err)
	return err
}

// Next performs a forward fetch and logs the outcome.
func (l *LoggingSource[K, C, V]) Next(ctx context.Context) error {
	start := time.Now()
	err := l.inner.Next(ctx)
	l.log("next", start, err)
	return err
}

// Previous performs a backward fetch and logs the outcome.
func (l *LoggingSource[K, C, V]) Previous(ctx context.Context) error {
	start := time.Now()
	err := l.inner.Previous(ctx)
	l.log("previous", start, err)
	return err
}

// RetrySource wraps a Source and automatically retries failed fetches with
// exponential backoff. This is opt-in collaborator behavior: the pager core
// itself only retries emptiness, never failure.
type RetrySource[K Ordered, C any, V any] struct {
	passthroughSource[K, C, V]
	maxRetries  int
	initialWait time.Duration
}

var _ Source[int, int, string] = (*RetrySource[int, int, string])(nil)

// NewRetrySource creates a new RetrySource.
// maxRetries specifies the maximum number of retry attempts (0 means no
// retries, negative selects the default of 3). initialWait is the wait before
// the first retry, doubled for each subsequent one.
func NewRetrySource[K Ordered, C any, V any](source Source[K, C, V], maxRetries int, initialWait time.Duration) *RetrySource[K, C, V] {
	if maxRetries < 0 {
		maxRetries = 3
	}
	if initialWait <= 0 {
		initialWait = 100 * time.Millisecond
	}
	return &RetrySource[K, C, V]{
		passthroughSource: passthroughSource[K, C, V]{inner: source},
		maxRetries:        maxRetries,
		initialWait:       initialWait,
	}
}

func (r *RetrySource[K, C, V]) retry(ctx context.Context, fetch func(context.Context) error) error {
	var lastErr error
	wait := r.initialWait

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		err := fetch(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < r.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				wait *= 2
			}
		}
	}
	return lastErr
}

// Around performs the anchored fetch with automatic retry on failure.
func (r *RetrySource[K, C, V]) Around(ctx context.Context, key *K, cursor *C) error {
	return r.retry(ctx, func(ctx context.Context) error {
		return r.inner.Around(ctx, key, cursor)
	})
}

// Next performs a forward fetch with automatic retry on failure.
func (r *RetrySource[K, C, V]) Next(ctx context.Context) error {
	return r.retry(ctx, r.inner.Next)
}

// Previous performs a backward fetch with automatic retry on failure.
func (r *RetrySource[K, C, V]) Previous(ctx context.Context) error {
	return r.retry(ctx, r.inner.Previous)
}

// RateLimitedSource wraps a Source and rate limits fetches using a token
// bucket algorithm.
type RateLimitedSource[K Ordered, C any, V any] struct {
	passthroughSource[K, C, V]

	mu           sync.Mutex
	tokens       float64
	maxTokens    float64
	refillRate   float64 // tokens per second
	lastRefillAt time.Time
}

var _ Source[int, int, string] = (*RateLimitedSource[int, int, string])(nil)

// NewRateLimitedSource creates a new RateLimitedSource.
// requestsPerSecond specifies how many fetches are allowed per second.
// burst specifies the maximum number of fetches that can be made in a burst.
func NewRateLimitedSource[K Ordered, C any, V any](source Source[K, C, V], requestsPerSecond float64, burst int) *RateLimitedSource[K, C, V] {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 10
	}
	if burst <= 0 {
		burst = int(requestsPerSecond)
	}
	return &RateLimitedSource[K, C, V]{
		passthroughSource: passthroughSource[K, C, V]{inner: source},
		tokens:            float64(burst),
		maxTokens:         float64(burst),
		refillRate:        requestsPerSecond,
		lastRefillAt:      time.Now(),
	}
}

// wait blocks until a token is available or ctx is cancelled.
func (r *RateLimitedSource[K, C, V]) wait(ctx context.Context) error {
	for {
		r.mu.Lock()

		now := time.Now()
		elapsed := now.Sub(r.lastRefillAt).Seconds()
		r.tokens = min(r.maxTokens, r.tokens+elapsed*r.refillRate)
		r.lastRefillAt = now

		if r.tokens >= 1 {
			r.tokens--
			r.mu.Unlock()
			return nil
		}

		waitTime := time.Duration((1 - r.tokens) / r.refillRate * float64(time.Second))
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(waitTime):
			// try again
		}
	}
}

// Around performs the anchored fetch, respecting the rate limit.
func (r *RateLimitedSource[K, C, V]) Around(ctx context.Context, key *K, cursor *C) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.inner.Around(ctx, key, cursor)
}

// Next performs a forward fetch, respecting the rate limit.
func (r *RateLimitedSource[K, C, V]) Next(ctx context.Context) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.inner.Next(ctx)
}

// Previous performs a backward fetch, respecting the rate limit.
func (r *RateLimitedSource[K, C, V]) Previous(ctx context.Context) error {
	if err := r.wait(ctx); err != nil {
		return err
	}
	return r.inner.Previous(ctx)
}
