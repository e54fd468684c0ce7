// Package keyedpager provides a bidirectional, keyed pagination engine. It
// materializes an ordered window of items fetched page by page from a backing
// source, keeps that window synchronized with the source's live change feed,
// and exposes uniform next/previous page loading with observable state.
package keyedpager

import "context"

// Op identifies the kind of mutation carried by a ChangeEvent.
type Op uint8

const (
	// OpAdded introduces a key that was not part of the dataset before.
	OpAdded Op = iota
	// OpUpdated replaces the value stored under an existing key.
	OpUpdated
	// OpRemoved deletes a key from the dataset.
	OpRemoved
)

// String returns a human-readable name for the operation.
func (o Op) String() string {
	switch o {
	case OpAdded:
		return "added"
	case OpUpdated:
		return "updated"
	case OpRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// ChangeEvent describes a single mutation of the backing dataset.
// Value carries the new value for OpAdded and OpUpdated and is the zero
// value for OpRemoved.
type ChangeEvent[K Ordered, V any] struct {
	Op    Op
	Key   K
	Value V
}

// Source is the contract a backing dataset must satisfy to drive a pager.
// The generic parameters are the key type K, the opaque cursor type C used to
// anchor the initial fetch, and the value type V produced by the source.
//
// Fetches never return items directly: a fetch merges its results into the
// consumer's window by publishing events on Changes before it returns, so a
// caller that awaits Around, Next or Previous observes a fully merged window
// afterwards.
type Source[K Ordered, C any, V any] interface {
	// HasNext reports whether a further page exists in the forward direction.
	HasNext() *Observable[bool]
	// HasPrevious reports whether a further page exists in the backward direction.
	HasPrevious() *Observable[bool]
	// NextLoading is true while a forward fetch is in flight.
	NextLoading() *Observable[bool]
	// PreviousLoading is true while a backward fetch is in flight.
	PreviousLoading() *Observable[bool]

	// Changes is the live feed of dataset mutations. It may be subscribed and
	// unsubscribed any number of times and must not deliver to a cancelled
	// subscription.
	Changes() *Feed[ChangeEvent[K, V]]

	// Around fetches the initial page anchored at key or cursor. Both may be
	// nil, in which case the source picks its own starting point.
	Around(ctx context.Context, key *K, cursor *C) error
	// Next fetches one further page in the forward direction and updates
	// HasNext accordingly.
	Next(ctx context.Context) error
	// Previous fetches one further page in the backward direction and updates
	// HasPrevious accordingly.
	Previous(ctx context.Context) error

	// Dispose releases the source's resources. The source must not publish
	// further change events once disposed.
	Dispose()
}
