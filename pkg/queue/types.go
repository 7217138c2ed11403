// Package queue implements the embedding job worker pool: claiming pending
// jobs with SELECT ... FOR UPDATE SKIP LOCKED, invoking an Encoder, bounded
// retries, dead-letter isolation, and a stale-claim reaper.
package queue

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors for queue operations.
var (
	// ErrNoJobsAvailable indicates no pending embedding job is in the queue.
	ErrNoJobsAvailable = errors.New("no jobs available")

	// ErrAtCapacity indicates the configured batch size has been reached.
	ErrAtCapacity = errors.New("at capacity")
)

// Encoder turns episode content into a fixed-width embedding vector. It is
// the sole point of contact with whatever model/service produces
// embeddings; the worker pool is agnostic to its implementation.
type Encoder interface {
	// Encode returns the embedding and the encoder's version string, which
	// is persisted alongside the vector so later encoder upgrades can be
	// detected.
	Encode(ctx context.Context, content string) ([]float32, string, error)
}

// PoolHealth contains health information for the entire worker pool.
type PoolHealth struct {
	IsHealthy        bool           `json:"is_healthy"`
	DBReachable      bool           `json:"db_reachable"`
	DBError          string         `json:"db_error,omitempty"`
	PodID            string         `json:"pod_id"`
	ActiveWorkers    int            `json:"active_workers"`
	TotalWorkers     int            `json:"total_workers"`
	PendingJobs      int            `json:"pending_jobs"`
	DeadJobs         int            `json:"dead_jobs"`
	WorkerStats      []WorkerHealth `json:"worker_stats"`
	LastOrphanScan   time.Time      `json:"last_orphan_scan"`
	OrphansRecovered int            `json:"orphans_recovered"`
}

// WorkerHealth contains health information for a single worker.
type WorkerHealth struct {
	ID            string    `json:"id"`
	Status        string    `json:"status"` // "idle" or "working"
	CurrentJobID  string    `json:"current_job_id,omitempty"`
	JobsProcessed int       `json:"jobs_processed"`
	LastActivity  time.Time `json:"last_activity"`
}
