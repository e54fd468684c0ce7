package keyedpager

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedisClient connects to the server named by REDIS_ADDR, or skips the
// test when none is configured.
func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set, skipping redis integration test")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func seedRedisDataset(t *testing.T, client *redis.Client, set, hash string, n int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < n; i++ {
		member := fmt.Sprintf("k%03d", i)
		require.NoError(t, client.ZAdd(ctx, set, redis.Z{Score: float64(i), Member: member}).Err())
		require.NoError(t, client.HSet(ctx, hash, member, fmt.Sprintf("value-%d", i)).Err())
	}
	t.Cleanup(func() { client.Del(ctx, set, hash) })
}

func TestRedisSourcePaging(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	suffix := time.Now().UnixNano()
	set := fmt.Sprintf("keyedpager:test:%d:set", suffix)
	hash := fmt.Sprintf("keyedpager:test:%d:hash", suffix)
	channel := fmt.Sprintf("keyedpager:test:%d:changes", suffix)
	seedRedisDataset(t, client, set, hash, 25)

	src := NewRedisSource(client, RedisSourceConfig{
		Set: set, Hash: hash, Channel: channel, PageSize: 10,
	})
	pager := NewPager[string, string, string](src, nil, nil, nil)
	defer pager.Dispose()

	require.NoError(t, pager.EnsureInitialized(ctx))
	assert.Equal(t, 10, pager.Window().Len())
	assert.True(t, pager.HasNext())
	assert.False(t, pager.HasPrevious())

	require.NoError(t, pager.Next(ctx))
	assert.Equal(t, 20, pager.Window().Len())

	require.NoError(t, pager.Next(ctx))
	assert.Equal(t, 25, pager.Window().Len())
	assert.False(t, pager.HasNext())

	item, ok := pager.Window().Get("k000")
	require.True(t, ok)
	assert.Equal(t, "value-0", item)
}

func TestRedisSourceAnchoredFetch(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	suffix := time.Now().UnixNano()
	set := fmt.Sprintf("keyedpager:test:%d:set", suffix)
	hash := fmt.Sprintf("keyedpager:test:%d:hash", suffix)
	channel := fmt.Sprintf("keyedpager:test:%d:changes", suffix)
	seedRedisDataset(t, client, set, hash, 25)

	src := NewRedisSource(client, RedisSourceConfig{
		Set: set, Hash: hash, Channel: channel, PageSize: 5,
	})
	defer src.Dispose()
	anchor := "k010"
	pager := NewPager[string, string, string](src, nil, &anchor, nil)

	require.NoError(t, pager.EnsureInitialized(ctx))
	assert.Equal(t, []string{"k010", "k011", "k012", "k013", "k014"}, pager.Window().Keys())
	assert.True(t, pager.HasPrevious())

	require.NoError(t, pager.Previous(ctx))
	assert.Equal(t, 10, pager.Window().Len())
	keys := pager.Window().Keys()
	assert.Equal(t, "k005", keys[0])
}

func TestRedisSourceLiveChanges(t *testing.T) {
	client := newTestRedisClient(t)
	ctx := context.Background()
	suffix := time.Now().UnixNano()
	set := fmt.Sprintf("keyedpager:test:%d:set", suffix)
	hash := fmt.Sprintf("keyedpager:test:%d:hash", suffix)
	channel := fmt.Sprintf("keyedpager:test:%d:changes", suffix)
	seedRedisDataset(t, client, set, hash, 3)

	src := NewRedisSource(client, RedisSourceConfig{
		Set: set, Hash: hash, Channel: channel, PageSize: 10,
	})
	pager := NewPager[string, string, string](src, nil, nil, nil)
	defer pager.Dispose()
	require.NoError(t, pager.EnsureInitialized(ctx))
	require.Equal(t, 3, pager.Window().Len())

	require.NoError(t, PublishRedisChange(ctx, client, channel, RedisChange{
		Op: "added", Key: "k900", Value: "late arrival",
	}))
	require.Eventually(t, func() bool {
		_, ok := pager.Window().Get("k900")
		return ok
	}, 2*time.Second, 10*time.Millisecond, "published change should reach the window")

	require.NoError(t, PublishRedisChange(ctx, client, channel, RedisChange{
		Op: "removed", Key: "k900",
	}))
	require.Eventually(t, func() bool {
		_, ok := pager.Window().Get("k900")
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
