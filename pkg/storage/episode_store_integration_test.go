package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nexuslabs/nexusmem/pkg/storage"
	"github.com/nexuslabs/nexusmem/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpisodeStore_CreateAndGet(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	ep := &storage.Episode{
		Content:         "vector databases enable semantic retrieval",
		ImportanceScore: 0.6,
		Tags:            []string{"test"},
	}
	require.NoError(t, pool.Episodes.Create(ctx, ep))
	assert.NotEqual(t, uuid.Nil, ep.ID)

	fetched, err := pool.Episodes.GetByID(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, ep.Content, fetched.Content)
	assert.Nil(t, fetched.Embedding)
}

func TestEpisodeStore_FindSimilar_ExcludesUnembedded(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	ep := &storage.Episode{Content: "no embedding yet", ImportanceScore: 0.5}
	require.NoError(t, pool.Episodes.Create(ctx, ep))

	results, err := pool.Episodes.FindSimilar(ctx, make([]float32, 384), 0.0, 10)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, ep.ID, r.ID)
	}
}

func TestEpisodeStore_TemporalOrdering(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	now := time.Now()
	before, err := pool.Episodes.GetBefore(ctx, now, 50, nil)
	require.NoError(t, err)
	for _, e := range before {
		assert.True(t, e.CreatedAt.Before(now))
	}
}
