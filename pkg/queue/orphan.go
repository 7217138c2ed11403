package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// orphanState tracks stale-job reaper metrics (thread-safe).
type orphanState struct {
	mu               sync.Mutex
	lastOrphanScan   time.Time
	orphansRecovered int
}

// runStaleJobReaper periodically reclaims embedding jobs left in the
// "processing" state by a worker that crashed or was killed mid-claim. All
// pods run this independently — the reap operation is idempotent since it
// only touches jobs whose claim has already expired.
func (p *WorkerPool) runStaleJobReaper(ctx context.Context) {
	ticker := time.NewTicker(p.config.OrphanDetectionInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.reapStaleJobs(ctx); err != nil {
				slog.Error("Stale job reap failed", "error", err)
			}
		}
	}
}

// reapStaleJobs finds processing jobs whose claim is older than
// StaleJobTimeout and returns them to pending (or dead, once retries are
// exhausted).
func (p *WorkerPool) reapStaleJobs(ctx context.Context) error {
	recovered, err := p.store.Jobs.ReapStale(ctx, p.config.StaleJobTimeout, p.config.MaxRetries)
	if err != nil {
		return err
	}

	p.orphans.mu.Lock()
	p.orphans.lastOrphanScan = time.Now()
	p.orphans.orphansRecovered += recovered
	p.orphans.mu.Unlock()

	if recovered > 0 {
		slog.Warn("Reclaimed stale embedding jobs", "count", recovered)
	}

	return nil
}
