package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/queue"
	"github.com/nexuslabs/nexusmem/pkg/storage"
	"github.com/nexuslabs/nexusmem/test/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEncoder returns a fixed embedding so tests don't depend on a real
// embedding model.
type fakeEncoder struct {
	dims int
}

func (f *fakeEncoder) Encode(ctx context.Context, content string) ([]float32, string, error) {
	vec := make([]float32, f.dims)
	for i := range vec {
		vec[i] = 0.01
	}
	return vec, "fake-v1", nil
}

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:             2,
		BatchSize:               5,
		MaxRetries:              3,
		PollInterval:            50 * time.Millisecond,
		PollIntervalJitter:      10 * time.Millisecond,
		ClaimTimeout:            5 * time.Second,
		StaleJobTimeout:         time.Minute,
		OrphanDetectionInterval: time.Minute,
	}
}

func TestWorkerPool_ProcessesEnqueuedJob(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	episode := &storage.Episode{
		Content:         "the pool processed this episode",
		ImportanceScore: 0.5,
	}
	require.NoError(t, pool.Episodes.Create(ctx, episode))

	tx, err := pool.BeginTx(ctx)
	require.NoError(t, err)
	_, err = pool.Jobs.EnqueueTx(ctx, tx, episode.ID, 0)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(ctx))

	wp := queue.NewWorkerPool("test-pod", pool, testQueueConfig(), &fakeEncoder{dims: 384})
	require.NoError(t, wp.Start(ctx))
	defer wp.Stop()

	assert.Eventually(t, func() bool {
		job, err := pool.Jobs.GetByEpisodeID(ctx, episode.ID)
		if err != nil {
			return false
		}
		return job.State == storage.JobStateDone
	}, 5*time.Second, 50*time.Millisecond)
}

func TestWorkerPool_Health_ReportsWorkerCount(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	wp := queue.NewWorkerPool("test-pod", pool, testQueueConfig(), &fakeEncoder{dims: 384})
	require.NoError(t, wp.Start(ctx))
	defer wp.Stop()

	health := wp.Health(ctx)
	assert.Equal(t, 2, health.TotalWorkers)
	assert.True(t, health.DBReachable)
}
