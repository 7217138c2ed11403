package storage

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TraceStore persists and queries NarrativeTrace rows, the graph edges the
// consolidation engine creates between episodes in a breakthrough chain.
type TraceStore struct {
	db *pgxpool.Pool
}

// CreateTx inserts a single narrative trace edge within an existing
// transaction (consolidation writes many traces atomically per chain).
func (s *TraceStore) CreateTx(ctx context.Context, tx pgx.Tx, t *NarrativeTrace) error {
	return tx.QueryRow(ctx, `
		INSERT INTO narrative_traces (source_episode_id, target_episode_id, trace_type, strength, narrative_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		t.SourceEpisodeID, t.TargetEpisodeID, t.TraceType, t.Strength, t.NarrativeID,
	).Scan(&t.ID, &t.CreatedAt)
}

