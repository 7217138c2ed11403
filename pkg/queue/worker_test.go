package queue

import (
	"testing"
	"time"

	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/stretchr/testify/assert"
)

func testQueueConfig() *config.QueueConfig {
	return &config.QueueConfig{
		WorkerCount:             5,
		BatchSize:               5,
		MaxRetries:              3,
		PollInterval:            1 * time.Second,
		PollIntervalJitter:      500 * time.Millisecond,
		ClaimTimeout:            15 * time.Minute,
		StaleJobTimeout:         15 * time.Minute,
		OrphanDetectionInterval: 5 * time.Minute,
	}
}

func TestWorkerPollInterval(t *testing.T) {
	cfg := testQueueConfig()
	w := NewWorker("test-worker", "test-pod", nil, cfg, nil)

	for i := 0; i < 100; i++ {
		d := w.pollInterval()
		assert.GreaterOrEqual(t, d, 500*time.Millisecond, "poll interval below minimum")
		assert.LessOrEqual(t, d, 1500*time.Millisecond, "poll interval above maximum")
	}
}

func TestWorkerPollInterval_NoJitter(t *testing.T) {
	cfg := testQueueConfig()
	cfg.PollIntervalJitter = 0
	w := NewWorker("test-worker", "test-pod", nil, cfg, nil)

	assert.Equal(t, 1*time.Second, w.pollInterval())
}

func TestWorkerHealth_StartsIdle(t *testing.T) {
	cfg := testQueueConfig()
	w := NewWorker("test-worker", "test-pod", nil, cfg, nil)

	health := w.Health()
	assert.Equal(t, string(WorkerStatusIdle), health.Status)
	assert.Equal(t, 0, health.JobsProcessed)
}
