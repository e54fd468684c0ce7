package keyedpager

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// ErrDisposed is returned by fetches issued against an already-disposed source.
var ErrDisposed = errors.New("keyedpager: source disposed")

// errNotAnchored is returned when Next or Previous runs before Around.
var errNotAnchored = errors.New("keyedpager: source not anchored")

// MemorySource is a Source backed by an in-memory ordered dataset. It serves
// fixed-size pages around an anchor and in both directions, publishing an
// Added event for every served entry, and broadcasts live mutations made
// through Put and Delete. Useful both as a test double and for purely local
// datasets.
//
// Its cursor type is an integer offset into the ordered dataset.
type MemorySource[K Ordered, V any] struct {
	pageSize int

	feed        *Feed[ChangeEvent[K, V]]
	hasNext     *Observable[bool]
	hasPrevious *Observable[bool]
	nextLoading *Observable[bool]
	prevLoading *Observable[bool]

	mu       sync.Mutex
	keys     []K // full backing dataset, ascending
	values   map[K]V
	lo, hi   int // half-open served span [lo, hi) in keys
	anchored bool
	disposed bool
}

var _ Source[int, int, string] = (*MemorySource[int, string])(nil)

// NewMemorySource creates a memory source over entries, served in pages of
// pageSize. If pageSize is 0 or negative, a default of 10 is used.
func NewMemorySource[K Ordered, V any](entries map[K]V, pageSize int) *MemorySource[K, V] {
	if pageSize <= 0 {
		pageSize = 10
	}
	keys := make([]K, 0, len(entries))
	values := make(map[K]V, len(entries))
	for k, v := range entries {
		keys = append(keys, k)
		values[k] = v
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return &MemorySource[K, V]{
		pageSize:    pageSize,
		feed:        NewFeed[ChangeEvent[K, V]](),
		hasNext:     NewObservable(false),
		hasPrevious: NewObservable(false),
		nextLoading: NewObservable(false),
		prevLoading: NewObservable(false),
		keys:        keys,
		values:      values,
	}
}

func (m *MemorySource[K, V]) HasNext() *Observable[bool]         { return m.hasNext }
func (m *MemorySource[K, V]) HasPrevious() *Observable[bool]     { return m.hasPrevious }
func (m *MemorySource[K, V]) NextLoading() *Observable[bool]     { return m.nextLoading }
func (m *MemorySource[K, V]) PreviousLoading() *Observable[bool] { return m.prevLoading }

func (m *MemorySource[K, V]) Changes() *Feed[ChangeEvent[K, V]] { return m.feed }

// Around serves the first page starting at the anchor position: the cursor
// offset when given, else the position of key, else the start of the dataset.
func (m *MemorySource[K, V]) Around(ctx context.Context, key *K, cursor *int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	anchor := 0
	switch {
	case cursor != nil:
		anchor = *cursor
	case key != nil:
		k := *key
		anchor = sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= k })
	}
	if anchor < 0 {
		anchor = 0
	}
	if anchor > len(m.keys) {
		anchor = len(m.keys)
	}
	m.lo = anchor
	m.hi = anchor + m.pageSize
	if m.hi > len(m.keys) {
		m.hi = len(m.keys)
	}
	m.anchored = true
	events := m.pageEventsLocked(m.lo, m.hi)
	hasNext, hasPrevious := m.hi < len(m.keys), m.lo > 0
	m.mu.Unlock()

	for _, ev := range events {
		m.feed.Publish(ev)
	}
	m.hasNext.Set(hasNext)
	m.hasPrevious.Set(hasPrevious)
	return nil
}

// Next serves one further page in the forward direction.
func (m *MemorySource[K, V]) Next(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.nextLoading.Set(true)
	defer m.nextLoading.Set(false)

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	if !m.anchored {
		m.mu.Unlock()
		return errNotAnchored
	}
	start := m.hi
	end := start + m.pageSize
	if end > len(m.keys) {
		end = len(m.keys)
	}
	m.hi = end
	events := m.pageEventsLocked(start, end)
	hasNext := m.hi < len(m.keys)
	m.mu.Unlock()

	for _, ev := range events {
		m.feed.Publish(ev)
	}
	m.hasNext.Set(hasNext)
	return nil
}

// Previous serves one further page in the backward direction.
func (m *MemorySource[K, V]) Previous(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.prevLoading.Set(true)
	defer m.prevLoading.Set(false)

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return ErrDisposed
	}
	if !m.anchored {
		m.mu.Unlock()
		return errNotAnchored
	}
	end := m.lo
	start := end - m.pageSize
	if start < 0 {
		start = 0
	}
	m.lo = start
	events := m.pageEventsLocked(start, end)
	hasPrevious := m.lo > 0
	m.mu.Unlock()

	for _, ev := range events {
		m.feed.Publish(ev)
	}
	m.hasPrevious.Set(hasPrevious)
	return nil
}

// Put inserts or updates a backing entry and broadcasts the mutation to feed
// subscribers immediately.
func (m *MemorySource[K, V]) Put(key K, value V) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	op := OpUpdated
	if _, ok := m.values[key]; !ok {
		op = OpAdded
		i := sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= key })
		m.keys = append(m.keys, key)
		copy(m.keys[i+1:], m.keys[i:])
		m.keys[i] = key
		// keep the served span pointing at the same entries
		if m.anchored {
			switch {
			case i < m.lo:
				m.lo++
				m.hi++
			case i < m.hi:
				m.hi++
			}
		}
	}
	m.values[key] = value
	anchored := m.anchored
	hasNext, hasPrevious := m.hi < len(m.keys), m.lo > 0
	m.mu.Unlock()

	m.feed.Publish(ChangeEvent[K, V]{Op: op, Key: key, Value: value})
	if anchored {
		m.hasNext.Set(hasNext)
		m.hasPrevious.Set(hasPrevious)
	}
}

// Delete removes a backing entry and broadcasts the removal. Deleting an
// absent key is a no-op.
func (m *MemorySource[K, V]) Delete(key K) {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return
	}
	if _, ok := m.values[key]; !ok {
		m.mu.Unlock()
		return
	}
	delete(m.values, key)
	i := sort.Search(len(m.keys), func(i int) bool { return m.keys[i] >= key })
	m.keys = append(m.keys[:i], m.keys[i+1:]...)
	if m.anchored {
		switch {
		case i < m.lo:
			m.lo--
			m.hi--
		case i < m.hi:
			m.hi--
		}
	}
	anchored := m.anchored
	hasNext, hasPrevious := m.hi < len(m.keys), m.lo > 0
	m.mu.Unlock()

	m.feed.Publish(ChangeEvent[K, V]{Op: OpRemoved, Key: key})
	if anchored {
		m.hasNext.Set(hasNext)
		m.hasPrevious.Set(hasPrevious)
	}
}

// Dispose marks the source as released. Further fetches fail with ErrDisposed
// and further Put/Delete calls are silently dropped.
func (m *MemorySource[K, V]) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disposed = true
}

func (m *MemorySource[K, V]) pageEventsLocked(start, end int) []ChangeEvent[K, V] {
	events := make([]ChangeEvent[K, V], 0, end-start)
	for _, k := range m.keys[start:end] {
		events = append(events, ChangeEvent[K, V]{Op: OpAdded, Key: k, Value: m.values[k]})
	}
	return events
}
