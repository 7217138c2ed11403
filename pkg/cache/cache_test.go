package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/nexuslabs/nexusmem/pkg/cache"
	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/storage"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	server, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(server.Close)

	c, err := cache.New(&config.CacheConfig{Enabled: true, Addr: server.Addr(), TTL: time.Minute})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCache_Disabled_GetRecentIsAlwaysMiss(t *testing.T) {
	c, err := cache.New(&config.CacheConfig{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, c)

	episodes, ok := c.GetRecent(context.Background(), 10)
	require.False(t, ok)
	require.Nil(t, episodes)
}

func TestCache_SetThenGetRecent_RoundTrips(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	episodes := []storage.Episode{{Content: "first"}, {Content: "second"}}
	c.SetRecent(ctx, 10, episodes)

	got, ok := c.GetRecent(ctx, 10)
	require.True(t, ok)
	require.Len(t, got, 2)
	require.Equal(t, "first", got[0].Content)
}

func TestCache_GetRecent_MissOnDifferentLimit(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.SetRecent(ctx, 10, []storage.Episode{{Content: "x"}})

	_, ok := c.GetRecent(ctx, 20)
	require.False(t, ok)
}

func TestCache_InvalidateRecent_ClearsAllPages(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	c.SetRecent(ctx, 10, []storage.Episode{{Content: "x"}})
	c.SetRecent(ctx, 20, []storage.Episode{{Content: "y"}})

	require.NoError(t, c.InvalidateRecent(ctx))

	_, ok1 := c.GetRecent(ctx, 10)
	_, ok2 := c.GetRecent(ctx, 20)
	require.False(t, ok1)
	require.False(t, ok2)
}
