package consolidation

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler runs a consolidation engine on a nightly ticker, consolidating
// the previous UTC day. It is an optional in-process alternative to invoking
// the engine from a standalone batch job.
type Scheduler struct {
	engine   *Engine
	interval time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler builds a scheduler around engine, firing every interval.
func NewScheduler(engine *Engine, interval time.Duration) *Scheduler {
	return &Scheduler{engine: engine, interval: interval}
}

// Start launches the background consolidation loop. Calling Start twice is a
// no-op.
func (s *Scheduler) Start(ctx context.Context) {
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go s.run(ctx)

	slog.Info("Consolidation scheduler started", "interval", s.interval)
}

// Stop signals the loop to exit and waits for it to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
	slog.Info("Consolidation scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	target := time.Now().UTC().AddDate(0, 0, -1)
	report, err := s.engine.ConsolidateDay(ctx, target)
	if err != nil {
		slog.Error("Consolidation run failed", "date", target.Format("2006-01-02"), "error", err)
		return
	}
	slog.Info("Consolidation run complete",
		"date", report.Date.Format("2006-01-02"),
		"episodes_processed", report.EpisodesProcessed,
		"breakthrough_count", report.BreakthroughCount,
		"chain_count", report.ChainCount,
		"episodes_boosted", report.EpisodesBoosted,
		"trace_count", report.TraceCount,
		"avg_boost", report.AvgBoost,
		"duration", report.ProcessingDuration)
}
