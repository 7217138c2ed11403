// Command nexusmem-consolidate runs one night's consolidation batch
// (pkg/consolidation) against a target date, or starts the recurring
// scheduler when -daemon is set.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/consolidation"
	"github.com/nexuslabs/nexusmem/pkg/storage"
)

func main() {
	targetDateFlag := flag.String("target-date", "", "date to consolidate, YYYY-MM-DD (default: yesterday, UTC)")
	daemon := flag.Bool("daemon", false, "run the recurring scheduler instead of a single batch")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storageCfg, err := config.LoadStorageConfigFromEnv()
	if err != nil {
		slog.Error("loading storage config", "error", err)
		os.Exit(1)
	}
	pool, err := storage.NewPool(ctx, storageCfg)
	if err != nil {
		slog.Error("connecting to storage", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	consolidationCfg, err := config.LoadConsolidationConfigFromEnv()
	if err != nil {
		slog.Error("loading consolidation config", "error", err)
		os.Exit(1)
	}
	engine := consolidation.NewEngine(pool, consolidationCfg)

	if *daemon {
		scheduler := consolidation.NewScheduler(engine, consolidationCfg.ScheduleInterval)
		scheduler.Start(ctx)
		slog.Info("consolidation scheduler running", "interval", consolidationCfg.ScheduleInterval)
		<-ctx.Done()
		scheduler.Stop()
		return
	}

	targetDate := time.Now().UTC().AddDate(0, 0, -1)
	if *targetDateFlag != "" {
		parsed, err := time.Parse("2006-01-02", *targetDateFlag)
		if err != nil {
			slog.Error("parsing -target-date", "error", err)
			os.Exit(1)
		}
		targetDate = parsed
	}

	report, err := engine.ConsolidateDay(ctx, targetDate)
	if err != nil {
		slog.Error("consolidation run failed", "target_date", targetDate.Format("2006-01-02"), "error", err)
		os.Exit(1)
	}

	slog.Info("consolidation run complete",
		"target_date", targetDate.Format("2006-01-02"),
		"episodes_processed", report.EpisodesProcessed,
		"breakthroughs", report.BreakthroughCount,
		"chains", report.ChainCount,
		"episodes_boosted", report.EpisodesBoosted,
		"traces_created", report.TraceCount,
		"replay_sampled", report.ReplaySampledCount,
		"avg_boost", report.AvgBoost,
		"max_boost", report.MaxBoost,
		"duration", report.ProcessingDuration,
	)
}
