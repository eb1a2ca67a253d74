package batch

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestSideCache(t *testing.T) *SideCache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewSideCache(client, time.Minute)
}

func TestSideCacheMapRoundTrip(t *testing.T) {
	cache := newTestSideCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, map[int64]string{1: "T-001", 2: "T-002"}))

	refs, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]string{1: "T-001", 2: "T-002"}, refs)

	require.NoError(t, cache.SetTags(ctx, map[int64]string{3: "T-003"}))
	require.NoError(t, cache.DeleteEntries(ctx, []int64{1}))

	refs, err = cache.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]string{2: "T-002", 3: "T-003"}, refs)
}

func TestSideCacheSaveReplacesMap(t *testing.T) {
	cache := newTestSideCache(t)
	ctx := context.Background()

	require.NoError(t, cache.Save(ctx, map[int64]string{1: "T-001"}))
	require.NoError(t, cache.Save(ctx, map[int64]string{2: "T-002"}))

	refs, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Equal(t, map[int64]string{2: "T-002"}, refs)
}

func TestSideCacheHistoryRoundTrip(t *testing.T) {
	cache := newTestSideCache(t)
	ctx := context.Background()

	cached, err := cache.CachedHistory(ctx)
	require.NoError(t, err)
	require.Nil(t, cached)

	records := []Record{{
		ID:        1,
		BatchCode: "T-001",
		Type:      TypeAllSell,
		CreatedAt: time.Date(2025, 2, 1, 8, 0, 0, 0, time.UTC),
		TotalPaid: 50000,
		Items:     []LineItem{sellLine("Lamp", 1, 9000, "new")},
	}}
	require.NoError(t, cache.CacheHistory(ctx, records))

	cached, err = cache.CachedHistory(ctx)
	require.NoError(t, err)
	require.Len(t, cached, 1)
	require.Equal(t, "T-001", cached[0].BatchCode)
	require.Len(t, cached[0].Items, 1)
	require.Equal(t, "Lamp", cached[0].Items[0].ProductName)
}

func TestSideCacheNilClient(t *testing.T) {
	var cache *SideCache
	ctx := context.Background()

	refs, err := cache.Load(ctx)
	require.NoError(t, err)
	require.Nil(t, refs)
	require.NoError(t, cache.Save(ctx, map[int64]string{1: "T-001"}))
	require.NoError(t, cache.CacheHistory(ctx, nil))
}
