package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nexuslabs/nexusmem/pkg/config"
)

// Pool wraps a pgx connection pool and the individual entity stores built
// on top of it.
type Pool struct {
	pool *pgxpool.Pool

	Episodes   *EpisodeStore
	Jobs       *JobStore
	Traces     *TraceStore
}

// NewPool opens a pgx pool against the configured Postgres instance, applies
// pending migrations, and wires up the entity stores.
func NewPool(ctx context.Context, cfg *config.StorageConfig) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing storage DSN: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(min(cfg.MaxIdleConns, cfg.MaxOpenConns))
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	poolCfg.MaxConnIdleTime = cfg.ConnMaxIdleTime

	pgxPool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("opening storage pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pgxPool.Ping(pingCtx); err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("pinging storage pool: %w", err)
	}

	if err := RunMigrations(cfg); err != nil {
		pgxPool.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Pool{
		pool:     pgxPool,
		Episodes: &EpisodeStore{db: pgxPool},
		Jobs:     &JobStore{db: pgxPool},
		Traces:   &TraceStore{db: pgxPool},
	}, nil
}

// Close releases all pooled connections.
func (p *Pool) Close() {
	p.pool.Close()
}

// BeginTx starts a transaction for callers that need to combine multiple
// store operations atomically (e.g. ingestion's episode+job write).
func (p *Pool) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPoolUnavailable, err)
	}
	return tx, nil
}

// HealthStatus mirrors the stats the teacher's database health check surfaces.
type HealthStatus struct {
	Status            string        `json:"status"`
	ResponseTime       time.Duration `json:"response_time"`
	TotalConns         int32         `json:"total_conns"`
	IdleConns          int32         `json:"idle_conns"`
	AcquiredConns      int32         `json:"acquired_conns"`
	MaxConns           int32         `json:"max_conns"`
}

// Health pings the pool and reports its current stats.
func (p *Pool) Health(ctx context.Context) HealthStatus {
	start := time.Now()
	err := p.pool.Ping(ctx)
	elapsed := time.Since(start)

	stats := p.pool.Stat()
	status := "healthy"
	if err != nil {
		status = "unhealthy"
	}

	return HealthStatus{
		Status:        status,
		ResponseTime:  elapsed,
		TotalConns:    stats.TotalConns(),
		IdleConns:     stats.IdleConns(),
		AcquiredConns: stats.AcquiredConns(),
		MaxConns:      stats.MaxConns(),
	}
}
