// Command nexusmem-server runs the HTTP API (pkg/api) alongside an
// embedded embedding worker pool (pkg/queue).
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/nexuslabs/nexusmem/pkg/api"
	"github.com/nexuslabs/nexusmem/pkg/cache"
	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/decay"
	"github.com/nexuslabs/nexusmem/pkg/embedding"
	"github.com/nexuslabs/nexusmem/pkg/ingest"
	"github.com/nexuslabs/nexusmem/pkg/queue"
	"github.com/nexuslabs/nexusmem/pkg/retrieval"
	"github.com/nexuslabs/nexusmem/pkg/storage"
	"github.com/nexuslabs/nexusmem/pkg/version"
)

func main() {
	envPath := filepath.Join(getEnv("CONFIG_DIR", "./deploy/config"), ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("no .env file loaded, continuing with process environment", "path", envPath, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("starting nexusmem-server", "version", version.Full())

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

	cacheCfg, err := config.LoadCacheConfigFromEnv()
	if err != nil {
		slog.Error("loading cache config", "error", err)
		os.Exit(1)
	}
	recentCache, err := cache.New(cacheCfg)
	if err != nil {
		slog.Error("connecting to cache", "error", err)
		os.Exit(1)
	}
	if recentCache != nil {
		defer recentCache.Close()
	}

	embeddingCfg, err := config.LoadEmbeddingConfigFromEnv()
	if err != nil {
		slog.Error("loading embedding config", "error", err)
		os.Exit(1)
	}
	encoder := embedding.New(embeddingCfg)

	queueCfg, err := config.LoadQueueConfigFromEnv()
	if err != nil {
		slog.Error("loading queue config", "error", err)
		os.Exit(1)
	}
	podID := getEnv("POD_ID", "nexusmem-server-0")
	workers := queue.NewWorkerPool(podID, pool, queueCfg, encoder)
	if err := workers.Start(ctx); err != nil {
		slog.Error("starting worker pool", "error", err)
		os.Exit(1)
	}
	defer workers.Stop()

	decayCfg, err := config.LoadDecayConfigFromEnv()
	if err != nil {
		slog.Error("loading decay config", "error", err)
		os.Exit(1)
	}

	retrievalSvc := retrieval.NewService(pool, encoder, recentCache)
	ingestSvc := ingest.NewService(pool, recentCache)
	decaySvc := decay.NewService(pool, decayCfg)

	serverCfg := config.LoadServerConfigFromEnv()
	server := api.NewServer(pool, retrievalSvc, ingestSvc, decaySvc, workers, recentCache, serverCfg)

	slog.Info("listening", "port", serverCfg.HTTPPort)
	if err := server.Run(ctx); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("nexusmem-server shut down cleanly")
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
