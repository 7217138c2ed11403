package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
)

const episodeColumns = `id, content, importance_score, tags, created_at, embedding, embedding_version, metadata`

// EpisodeStore persists and queries Episode rows.
type EpisodeStore struct {
	db *pgxpool.Pool
}

// Create inserts a new episode and returns its generated id/created_at.
func (s *EpisodeStore) Create(ctx context.Context, e *Episode) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	var embedding *pgvector.Vector
	if len(e.Embedding) > 0 {
		v := pgvector.NewVector(e.Embedding)
		embedding = &v
	}

	return s.db.QueryRow(ctx,
		`INSERT INTO episodes (content, importance_score, tags, embedding, embedding_version, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at`,
		e.Content, e.ImportanceScore, e.Tags, embedding, e.EmbeddingVersion, metadataJSON,
	).Scan(&e.ID, &e.CreatedAt)
}

// CreateTx is Create run against an explicit transaction, for callers (e.g.
// ingestion) that must insert the episode and its embedding job atomically.
func (s *EpisodeStore) CreateTx(ctx context.Context, tx pgx.Tx, e *Episode) error {
	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	return tx.QueryRow(ctx,
		`INSERT INTO episodes (content, importance_score, tags, embedding_version, metadata)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		e.Content, e.ImportanceScore, e.Tags, e.EmbeddingVersion, metadataJSON,
	).Scan(&e.ID, &e.CreatedAt)
}

// GetByID fetches a single episode.
func (s *EpisodeStore) GetByID(ctx context.Context, id uuid.UUID) (*Episode, error) {
	row := s.db.QueryRow(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = $1`, id)
	return scanEpisode(row)
}

// GetByIDTx is GetByID scoped to an explicit transaction (used by callers
// that need a consistent read within a larger write transaction, e.g. the
// consolidation engine when updating scores).
func (s *EpisodeStore) GetByIDTx(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*Episode, error) {
	row := tx.QueryRow(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = $1`, id)
	return scanEpisode(row)
}

// UpdateEmbedding writes the vector produced by the encoder for an episode.
// Called by the embedding worker once a job succeeds.
func (s *EpisodeStore) UpdateEmbedding(ctx context.Context, id uuid.UUID, embedding []float32, version string) error {
	vec := pgvector.NewVector(embedding)
	tag, err := s.db.Exec(ctx,
		`UPDATE episodes SET embedding = $1, embedding_version = $2 WHERE id = $3`,
		vec, version, id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMetadata overwrites the whole metadata record (used by consolidation
// and decay updates, which recompute the full structure).
func (s *EpisodeStore) UpdateMetadata(ctx context.Context, id uuid.UUID, metadata EpisodeMetadata) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tag, err := s.db.Exec(ctx, `UPDATE episodes SET metadata = $1 WHERE id = $2`, metadataJSON, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateMetadataTx is UpdateMetadata scoped to a transaction.
func (s *EpisodeStore) UpdateMetadataTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, metadata EpisodeMetadata) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tag, err := tx.Exec(ctx, `UPDATE episodes SET metadata = $1 WHERE id = $2`, metadataJSON, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateImportance sets a new importance_score (used when fact extraction or
// consolidation revises it). The caller is responsible for clamping to [0,1].
func (s *EpisodeStore) UpdateImportance(ctx context.Context, id uuid.UUID, importance float64) error {
	tag, err := s.db.Exec(ctx, `UPDATE episodes SET importance_score = $1 WHERE id = $2`, importance, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateImportanceTx is UpdateImportance scoped to a transaction.
func (s *EpisodeStore) UpdateImportanceTx(ctx context.Context, tx pgx.Tx, id uuid.UUID, importance float64) error {
	tag, err := tx.Exec(ctx, `UPDATE episodes SET importance_score = $1 WHERE id = $2`, importance, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordAccess bumps access_count and last_accessed in the embedded
// access_tracking metadata. access_count never decreases, last_accessed
// never moves backward — enforced here by always writing time.Now().
func (s *EpisodeStore) RecordAccess(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	tag, err := s.db.Exec(ctx, `
		UPDATE episodes SET metadata = jsonb_set(
			jsonb_set(
				COALESCE(metadata, '{}'::jsonb),
				'{access_tracking,access_count}',
				to_jsonb(COALESCE((metadata#>>'{access_tracking,access_count}')::int, 0) + 1),
				true
			),
			'{access_tracking,last_accessed}',
			to_jsonb($2::text),
			true
		)
		WHERE id = $1`,
		id, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// AddTemporalRef appends a directed temporal edge to the source episode's
// embedded temporal_refs list (the add_temporal_ref stored-procedure
// contract from the storage substrate). The read-then-append is folded into
// a single UPDATE so concurrent callers serialize on the row lock instead of
// racing on a separate read.
func (s *EpisodeStore) AddTemporalRef(ctx context.Context, sourceID, targetID uuid.UUID, relation string) error {
	now := time.Now()
	tag, err := s.db.Exec(ctx, `
		UPDATE episodes SET metadata = jsonb_set(
			COALESCE(metadata, '{}'::jsonb),
			'{temporal_refs}',
			COALESCE(metadata->'temporal_refs', '[]'::jsonb) ||
				jsonb_build_array(jsonb_build_object('target_id', $2::text, 'relation', $3, 'created_at', $4::text)),
			true
		)
		WHERE id = $1`,
		sourceID, targetID.String(), relation, now.Format(time.RFC3339Nano),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FindSimilar runs a pgvector cosine-similarity search (D1 — semantic search).
// Results are ordered by score descending; every result's score is >=
// minSimilarity and no result has a null embedding (enforced by the WHERE
// clause, matching the semantic-search contract).
func (s *EpisodeStore) FindSimilar(ctx context.Context, embedding []float32, minSimilarity float64, limit int) ([]EpisodeWithScore, error) {
	if limit <= 0 {
		limit = 10
	}
	vec := pgvector.NewVector(embedding)

	rows, err := s.db.Query(ctx, `
		SELECT `+episodeColumns+`, 1 - (embedding <=> $1) AS score
		FROM episodes
		WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2
		ORDER BY score DESC
		LIMIT $3`,
		vec, minSimilarity, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("find similar episodes: %w", err)
	}
	defer rows.Close()

	var results []EpisodeWithScore
	for rows.Next() {
		ep, score, err := scanEpisodeWithScore(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, EpisodeWithScore{Episode: *ep, Score: score})
	}
	return results, rows.Err()
}

// GetBefore returns episodes created strictly before t (D3), most recent
// first, optionally restricted to episodes whose tag set overlaps tags.
func (s *EpisodeStore) GetBefore(ctx context.Context, t time.Time, limit int, tags []string) ([]Episode, error) {
	return s.queryEpisodes(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE created_at < $1 AND ($3::text[] IS NULL OR tags && $3) ORDER BY created_at DESC LIMIT $2`,
		t, limitOrDefault(limit), nilIfEmpty(tags))
}

// GetAfter returns episodes created strictly after t (D3), oldest first,
// optionally restricted to episodes whose tag set overlaps tags.
func (s *EpisodeStore) GetAfter(ctx context.Context, t time.Time, limit int, tags []string) ([]Episode, error) {
	return s.queryEpisodes(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE created_at > $1 AND ($3::text[] IS NULL OR tags && $3) ORDER BY created_at ASC LIMIT $2`,
		t, limitOrDefault(limit), nilIfEmpty(tags))
}

// GetRange returns episodes with created_at in [start, end] (D3), oldest
// first, optionally restricted to episodes whose tag set overlaps tags.
func (s *EpisodeStore) GetRange(ctx context.Context, start, end time.Time, limit int, tags []string) ([]Episode, error) {
	return s.queryEpisodes(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE created_at >= $1 AND created_at <= $2 AND ($4::text[] IS NULL OR tags && $4) ORDER BY created_at ASC LIMIT $3`,
		start, end, limitOrDefault(limit), nilIfEmpty(tags))
}

// nilIfEmpty normalizes an empty tag filter to nil so the SQL's
// "$n IS NULL" branch can detect "no filter requested".
func nilIfEmpty(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	return tags
}

// GetRecent returns the most recently created episodes, newest first — the
// backing query for the read-through "recent" cache.
func (s *EpisodeStore) GetRecent(ctx context.Context, limit int) ([]Episode, error) {
	return s.queryEpisodes(ctx,
		`SELECT `+episodeColumns+` FROM episodes ORDER BY created_at DESC LIMIT $1`,
		limitOrDefault(limit))
}

// GetByIDs fetches multiple episodes in one round trip, for composing
// related-episode and chain-tracing results without N+1 queries.
func (s *EpisodeStore) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]Episode, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.queryEpisodes(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ANY($1)`, ids)
}

// GetForDecayAnalysis returns every episode along with its access-tracking
// metadata, for bulk decay-score computation.
func (s *EpisodeStore) GetForDecayAnalysis(ctx context.Context) ([]Episode, error) {
	return s.queryEpisodes(ctx, `SELECT `+episodeColumns+` FROM episodes`)
}

// GetByDateRange returns episodes whose created_at lies in [dayStart, dayEnd),
// oldest first, for the consolidation engine's daily batch.
func (s *EpisodeStore) GetByDateRange(ctx context.Context, dayStart, dayEnd time.Time) ([]Episode, error) {
	return s.queryEpisodes(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at ASC`,
		dayStart, dayEnd)
}

// GetOldImportant returns a random sample of old, highly-consolidated
// episodes for interleaved replay, matching fetch_old_important_memories.
func (s *EpisodeStore) GetOldImportant(ctx context.Context, minAge, maxAge time.Duration, minConsolidatedSalience float64, sampleSize int) ([]Episode, error) {
	now := time.Now()
	return s.queryEpisodes(ctx, `
		SELECT `+episodeColumns+` FROM episodes
		WHERE created_at <= $1 AND created_at >= $2
		  AND COALESCE((metadata#>>'{consolidation,consolidated_salience_score}')::float, 0) >= $3
		ORDER BY random()
		LIMIT $4`,
		now.Add(-minAge), now.Add(-maxAge), minConsolidatedSalience, sampleSize)
}

// GetWithFact returns episodes whose metadata.facts object contains factKey
// (D5 — fact lookup), optionally bounded by tags and a created-at window,
// ordered "desc" (default) or "asc".
func (s *EpisodeStore) GetWithFact(ctx context.Context, factKey string, tags []string, after, before *time.Time, limit int, order string) ([]Episode, error) {
	if order != "asc" {
		order = "desc"
	}
	sql := `
		SELECT ` + episodeColumns + ` FROM episodes
		WHERE metadata -> 'facts' ? $1
		  AND ($2::text[] IS NULL OR tags && $2)
		  AND ($3::timestamptz IS NULL OR created_at >= $3)
		  AND ($4::timestamptz IS NULL OR created_at <= $4)
		ORDER BY created_at ` + order + `
		LIMIT $5`
	return s.queryEpisodes(ctx, sql, factKey, nilIfEmpty(tags), after, before, limitOrDefault(limit))
}

func (s *EpisodeStore) queryEpisodes(ctx context.Context, sql string, args ...any) ([]Episode, error) {
	rows, err := s.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		ep, err := scanEpisodeRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ep)
	}
	return out, rows.Err()
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row rowScanner) (*Episode, error) {
	ep, err := scanEpisodeRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ep, nil
}

func scanEpisodeRow(row rowScanner) (*Episode, error) {
	var ep Episode
	var embedding *pgvector.Vector
	var metadataJSON []byte

	if err := row.Scan(
		&ep.ID, &ep.Content, &ep.ImportanceScore, &ep.Tags, &ep.CreatedAt,
		&embedding, &ep.EmbeddingVersion, &metadataJSON,
	); err != nil {
		return nil, err
	}

	if embedding != nil {
		ep.Embedding = embedding.Slice()
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &ep.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &ep, nil
}

func scanEpisodeWithScore(row rowScanner) (*Episode, float64, error) {
	var ep Episode
	var embedding *pgvector.Vector
	var metadataJSON []byte
	var score float64

	if err := row.Scan(
		&ep.ID, &ep.Content, &ep.ImportanceScore, &ep.Tags, &ep.CreatedAt,
		&embedding, &ep.EmbeddingVersion, &metadataJSON, &score,
	); err != nil {
		return nil, 0, err
	}

	if embedding != nil {
		ep.Embedding = embedding.Slice()
	}
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &ep.Metadata); err != nil {
			return nil, 0, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &ep, score, nil
}
