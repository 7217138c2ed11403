package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/storage"
)

// WorkerPool manages a pool of embedding job workers.
type WorkerPool struct {
	podID   string
	store   *storage.Pool
	config  *config.QueueConfig
	encoder Encoder
	workers []*Worker
	stopCh  chan struct{}
	stopOnce sync.Once
	wg      sync.WaitGroup

	mu      sync.RWMutex
	started bool

	orphans orphanState
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(podID string, store *storage.Pool, cfg *config.QueueConfig, encoder Encoder) *WorkerPool {
	return &WorkerPool{
		podID:   podID,
		store:   store,
		config:  cfg,
		encoder: encoder,
		workers: make([]*Worker, 0, cfg.WorkerCount),
		stopCh:  make(chan struct{}),
	}
}

// Start spawns worker goroutines and the stale-job reaper. Safe to call
// multiple times; subsequent calls are no-ops.
func (p *WorkerPool) Start(ctx context.Context) error {
	if p.started {
		slog.Warn("Worker pool already started, ignoring duplicate Start call", "pod_id", p.podID)
		return nil
	}
	p.started = true

	slog.Info("Starting embedding worker pool", "pod_id", p.podID, "worker_count", p.config.WorkerCount)

	for i := 0; i < p.config.WorkerCount; i++ {
		workerID := fmt.Sprintf("%s-worker-%d", p.podID, i)
		worker := NewWorker(workerID, p.podID, p.store, p.config, p.encoder)
		p.workers = append(p.workers, worker)
		worker.Start(ctx)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runStaleJobReaper(ctx)
	}()

	slog.Info("Embedding worker pool started")
	return nil
}

// Stop signals all workers to stop and waits for them to finish. Workers
// finish their current job before exiting (graceful shutdown).
func (p *WorkerPool) Stop() {
	slog.Info("Stopping embedding worker pool gracefully")

	for _, worker := range p.workers {
		worker.Stop()
	}

	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()

	slog.Info("Embedding worker pool stopped gracefully")
}

// Health returns the current health status of the pool.
func (p *WorkerPool) Health(ctx context.Context) *PoolHealth {
	pending, errP := p.store.Jobs.CountByState(ctx, storage.JobStatePending)
	if errP != nil {
		slog.Error("Failed to query pending job count for health check", "pod_id", p.podID, "error", errP)
	}
	dead, errD := p.store.Jobs.CountByState(ctx, storage.JobStateDead)
	if errD != nil {
		slog.Error("Failed to query dead job count for health check", "pod_id", p.podID, "error", errD)
	}

	workerStats := make([]WorkerHealth, len(p.workers))
	activeWorkers := 0
	for i, worker := range p.workers {
		stats := worker.Health()
		workerStats[i] = stats
		if stats.Status == string(WorkerStatusWorking) {
			activeWorkers++
		}
	}

	dbHealthy := errP == nil && errD == nil
	isHealthy := len(p.workers) > 0 && dbHealthy

	p.orphans.mu.Lock()
	lastOrphanScan := p.orphans.lastOrphanScan
	orphansRecovered := p.orphans.orphansRecovered
	p.orphans.mu.Unlock()

	var dbError string
	if !dbHealthy {
		if errP != nil {
			dbError = fmt.Sprintf("pending job count query failed: %v", errP)
		} else if errD != nil {
			dbError = fmt.Sprintf("dead job count query failed: %v", errD)
		}
	}

	return &PoolHealth{
		IsHealthy:        isHealthy,
		DBReachable:      dbHealthy,
		DBError:          dbError,
		PodID:            p.podID,
		ActiveWorkers:    activeWorkers,
		TotalWorkers:     len(p.workers),
		PendingJobs:      pending,
		DeadJobs:         dead,
		WorkerStats:      workerStats,
		LastOrphanScan:   lastOrphanScan,
		OrphansRecovered: orphansRecovered,
	}
}
