package keyedpager

import (
	"context"
	"errors"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// appendTransform concatenates successive source values, threading the
// previously stored item through.
func appendTransform(ctx context.Context, previous *string, data string) (string, error) {
	if previous == nil {
		return data, nil
	}
	return *previous + "|" + data, nil
}

func TestTransformingPagerIncrementality(t *testing.T) {
	src := newFakeSource[int, string]()
	pager := NewTransformingPager[int, int, string, string](src, appendTransform, nil, nil)
	require.NoError(t, pager.EnsureInitialized(context.Background()))

	src.feed.Publish(ChangeEvent[int, string]{Op: OpUpdated, Key: 1, Value: "v1"})
	item, ok := pager.Window().Get(1)
	require.True(t, ok)
	assert.Equal(t, "v1", item, "first event sees no previous item")

	src.feed.Publish(ChangeEvent[int, string]{Op: OpUpdated, Key: 1, Value: "v2"})
	item, ok = pager.Window().Get(1)
	require.True(t, ok)
	assert.Equal(t, "v1|v2", item, "second event sees the stored item as previous")
}

func TestTransformingPagerInitialFetch(t *testing.T) {
	src := newFakeSource[int, string]()
	src.onAround = func(ctx context.Context, key *int, cursor *int) error {
		src.feed.Publish(ChangeEvent[int, string]{Op: OpAdded, Key: 1, Value: "a"})
		src.feed.Publish(ChangeEvent[int, string]{Op: OpAdded, Key: 2, Value: "b"})
		return nil
	}
	pager := NewTransformingPager[int, int, string, string](src, appendTransform, nil, nil)

	require.NoError(t, pager.EnsureInitialized(context.Background()))
	assert.Equal(t, StatusSuccess, pager.Status().Get())
	assert.Equal(t, []string{"a", "b"}, pager.Window().Items())
	assert.Equal(t, int32(1), src.aroundCalls.Load())
}

func TestTransformingPagerFailureDropsSingleEvent(t *testing.T) {
	src := newFakeSource[int, string]()
	logger, hook := test.NewNullLogger()
	transform := func(ctx context.Context, previous *string, data string) (string, error) {
		if data == "bad" {
			return "", errors.New("unprocessable")
		}
		return data, nil
	}
	pager := NewTransformingPager[int, int, string, string](src, transform, nil, nil, WithLogger(logger))
	require.NoError(t, pager.EnsureInitialized(context.Background()))

	src.feed.Publish(ChangeEvent[int, string]{Op: OpAdded, Key: 1, Value: "ok"})
	src.feed.Publish(ChangeEvent[int, string]{Op: OpAdded, Key: 2, Value: "bad"})
	src.feed.Publish(ChangeEvent[int, string]{Op: OpAdded, Key: 3, Value: "ok2"})

	assert.Equal(t, []int{1, 3}, pager.Window().Keys(), "only the failing event is dropped")
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "transform failed")
}

func TestTransformingPagerRemoved(t *testing.T) {
	src := newFakeSource[int, string]()
	pager := NewTransformingPager[int, int, string, string](src, appendTransform, nil, nil)
	require.NoError(t, pager.EnsureInitialized(context.Background()))

	src.feed.Publish(ChangeEvent[int, string]{Op: OpAdded, Key: 1, Value: "a"})
	src.feed.Publish(ChangeEvent[int, string]{Op: OpRemoved, Key: 1})
	assert.Equal(t, 0, pager.Window().Len())

	// removing an absent key stays a no-op
	src.feed.Publish(ChangeEvent[int, string]{Op: OpRemoved, Key: 9})
	assert.Equal(t, 0, pager.Window().Len())
}

func TestTransformingPagerNextForwardsWithoutRetry(t *testing.T) {
	src := newFakeSource[int, string]()
	src.hasNext.Set(true) // promises more, yields nothing
	src.hasPrevious.Set(true)
	pager := NewTransformingPager[int, int, string, string](src, appendTransform, nil, nil)
	ctx := context.Background()
	require.NoError(t, pager.EnsureInitialized(ctx))
	require.Equal(t, StatusSuccess, pager.Status().Get())

	require.NoError(t, pager.Next(ctx))
	assert.Equal(t, int32(1), src.nextCalls.Load(), "exactly one forward fetch, no retry loop")

	require.NoError(t, pager.Previous(ctx))
	assert.Equal(t, int32(1), src.prevCalls.Load())

	assert.Equal(t, StatusSuccess, pager.Status().Get(), "page loads leave the status alone")
}

func TestTransformingPagerNextError(t *testing.T) {
	src := newFakeSource[int, string]()
	boom := errors.New("boom")
	src.onNext = func(ctx context.Context) error { return boom }
	pager := NewTransformingPager[int, int, string, string](src, appendTransform, nil, nil)
	ctx := context.Background()
	require.NoError(t, pager.EnsureInitialized(ctx))

	require.ErrorIs(t, pager.Next(ctx), boom)
}

func TestTransformingPagerSourceless(t *testing.T) {
	pager := NewTransformingPager[int, int, string, string](nil, appendTransform, nil, nil)
	ctx := context.Background()

	require.NoError(t, pager.EnsureInitialized(ctx))
	assert.Equal(t, StatusSuccess, pager.Status().Get())
	assert.False(t, pager.HasNext())
	assert.False(t, pager.HasPrevious())
	assert.False(t, pager.NextLoading())
	assert.False(t, pager.PreviousLoading())
	require.NoError(t, pager.Next(ctx))
	require.NoError(t, pager.Previous(ctx))
}

func TestTransformingPagerDisposeStopsMutation(t *testing.T) {
	src := newFakeSource[int, string]()
	var transformCtx context.Context
	transform := func(ctx context.Context, previous *string, data string) (string, error) {
		transformCtx = ctx
		return data, nil
	}
	pager := NewTransformingPager[int, int, string, string](src, transform, nil, nil)
	require.NoError(t, pager.EnsureInitialized(context.Background()))

	src.feed.Publish(ChangeEvent[int, string]{Op: OpAdded, Key: 1, Value: "a"})
	require.Equal(t, 1, pager.Window().Len())
	require.NotNil(t, transformCtx)
	require.NoError(t, transformCtx.Err())

	pager.Dispose()
	src.feed.Publish(ChangeEvent[int, string]{Op: OpAdded, Key: 2, Value: "b"})
	assert.Equal(t, 1, pager.Window().Len())
	assert.Error(t, transformCtx.Err(), "dispose cancels the transform context")
	assert.Equal(t, int32(1), src.disposeCalls.Load())

	pager.Dispose()
	assert.Equal(t, int32(1), src.disposeCalls.Load())
}

func TestTransformingPagerNilTransformPanics(t *testing.T) {
	assert.Panics(t, func() {
		NewTransformingPager[int, int, string, string](nil, nil, nil, nil)
	})
}
