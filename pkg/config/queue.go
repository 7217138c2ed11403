package config

import (
	"fmt"
	"time"
)

// QueueConfig configures the embedding worker pool (pkg/queue).
type QueueConfig struct {
	WorkerCount             int
	BatchSize               int
	MaxRetries              int
	PollInterval            time.Duration
	PollIntervalJitter      time.Duration
	ClaimTimeout            time.Duration
	StaleJobTimeout         time.Duration
	OrphanDetectionInterval time.Duration
}

// LoadQueueConfigFromEnv reads WORKER_* environment variables.
func LoadQueueConfigFromEnv() (*QueueConfig, error) {
	workerCount, err := getEnvIntOrDefault("WORKER_COUNT", 4)
	if err != nil {
		return nil, err
	}
	batchSize, err := getEnvIntOrDefault("WORKER_BATCH_SIZE", 10)
	if err != nil {
		return nil, err
	}
	maxRetries, err := getEnvIntOrDefault("WORKER_MAX_RETRIES", 5)
	if err != nil {
		return nil, err
	}
	pollInterval, err := getEnvDurationOrDefault("WORKER_POLL_INTERVAL", 500*time.Millisecond)
	if err != nil {
		return nil, err
	}
	pollJitter, err := getEnvDurationOrDefault("WORKER_POLL_INTERVAL_JITTER", 150*time.Millisecond)
	if err != nil {
		return nil, err
	}
	claimTimeout, err := getEnvDurationOrDefault("WORKER_CLAIM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	staleTimeout, err := getEnvDurationOrDefault("WORKER_STALE_JOB_TIMEOUT", 5*time.Minute)
	if err != nil {
		return nil, err
	}
	orphanInterval, err := getEnvDurationOrDefault("WORKER_ORPHAN_SCAN_INTERVAL", time.Minute)
	if err != nil {
		return nil, err
	}

	cfg := &QueueConfig{
		WorkerCount:             workerCount,
		BatchSize:               batchSize,
		MaxRetries:              maxRetries,
		PollInterval:            pollInterval,
		PollIntervalJitter:      pollJitter,
		ClaimTimeout:            claimTimeout,
		StaleJobTimeout:         staleTimeout,
		OrphanDetectionInterval: orphanInterval,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks invariants on the queue configuration.
func (c *QueueConfig) Validate() error {
	if c.WorkerCount < 1 {
		return &ValidationError{Field: "WORKER_COUNT", Err: fmt.Errorf("must be >= 1")}
	}
	if c.BatchSize < 1 {
		return &ValidationError{Field: "WORKER_BATCH_SIZE", Err: fmt.Errorf("must be >= 1")}
	}
	if c.MaxRetries < 0 {
		return &ValidationError{Field: "WORKER_MAX_RETRIES", Err: fmt.Errorf("must be >= 0")}
	}
	return nil
}
