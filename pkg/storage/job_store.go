package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const jobColumns = `id, episode_id, state, priority, retry_count, last_error, enqueued_at, claimed_at, claimed_by, processed_at`

// JobStore persists and claims EmbeddingJob rows.
type JobStore struct {
	db *pgxpool.Pool
}

// EnqueueTx inserts a pending job for an episode within an existing
// transaction (the ingestion path commits the episode and its job together).
func (s *JobStore) EnqueueTx(ctx context.Context, tx pgx.Tx, episodeID uuid.UUID, priority int) (*EmbeddingJob, error) {
	job := &EmbeddingJob{EpisodeID: episodeID, State: JobStatePending, Priority: priority}
	err := tx.QueryRow(ctx,
		`INSERT INTO embedding_jobs (episode_id, priority) VALUES ($1, $2) RETURNING id, enqueued_at`,
		episodeID, priority,
	).Scan(&job.ID, &job.EnqueuedAt)
	if err != nil {
		return nil, err
	}
	return job, nil
}

// ClaimNext atomically claims the highest-priority, oldest pending job using
// SELECT ... FOR UPDATE SKIP LOCKED, so concurrent workers never claim the
// same job twice (the queue's at-most-once-claim guarantee).
func (s *JobStore) ClaimNext(ctx context.Context, claimedBy string) (*EmbeddingJob, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		SELECT id FROM embedding_jobs
		WHERE state = $1
		ORDER BY priority DESC, enqueued_at ASC
		LIMIT 1
		FOR UPDATE SKIP LOCKED`,
		JobStatePending,
	)
	var id uuid.UUID
	if err := row.Scan(&id); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoJobsAvailable
		}
		return nil, err
	}

	now := time.Now()
	var job EmbeddingJob
	err = tx.QueryRow(ctx, `
		UPDATE embedding_jobs
		SET state = $1, claimed_at = $2, claimed_by = $3
		WHERE id = $4
		RETURNING `+jobColumns,
		JobStateProcessing, now, claimedBy, id,
	).Scan(&job.ID, &job.EpisodeID, &job.State, &job.Priority, &job.RetryCount,
		&job.LastError, &job.EnqueuedAt, &job.ClaimedAt, &job.ClaimedBy, &job.ProcessedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkDone transitions a job to its terminal success state.
func (s *JobStore) MarkDone(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE embedding_jobs SET state = $1, processed_at = $2, last_error = '' WHERE id = $3`,
		JobStateDone, time.Now(), id,
	)
	return err
}

// MarkFailed records an error and either re-queues the job (retry_count <
// maxRetries) or moves it to the terminal "dead" state — the bounded-retry
// / dead-letter contract.
func (s *JobStore) MarkFailed(ctx context.Context, id uuid.UUID, errMsg string, maxRetries int) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var retryCount int
	if err := tx.QueryRow(ctx, `SELECT retry_count FROM embedding_jobs WHERE id = $1`, id).Scan(&retryCount); err != nil {
		return err
	}

	retryCount++
	nextState := JobStatePending
	if retryCount >= maxRetries {
		nextState = JobStateDead
	}

	if _, err := tx.Exec(ctx, `
		UPDATE embedding_jobs
		SET state = $1, retry_count = $2, last_error = $3, claimed_at = NULL, claimed_by = ''
		WHERE id = $4`,
		nextState, retryCount, errMsg, id,
	); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// GetByID fetches a single job.
func (s *JobStore) GetByID(ctx context.Context, id uuid.UUID) (*EmbeddingJob, error) {
	var job EmbeddingJob
	err := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM embedding_jobs WHERE id = $1`, id).Scan(
		&job.ID, &job.EpisodeID, &job.State, &job.Priority, &job.RetryCount,
		&job.LastError, &job.EnqueuedAt, &job.ClaimedAt, &job.ClaimedBy, &job.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// GetByEpisodeID fetches the job associated with an episode (there is at
// most one, enforced by the unique constraint on episode_id).
func (s *JobStore) GetByEpisodeID(ctx context.Context, episodeID uuid.UUID) (*EmbeddingJob, error) {
	var job EmbeddingJob
	err := s.db.QueryRow(ctx, `SELECT `+jobColumns+` FROM embedding_jobs WHERE episode_id = $1`, episodeID).Scan(
		&job.ID, &job.EpisodeID, &job.State, &job.Priority, &job.RetryCount,
		&job.LastError, &job.EnqueuedAt, &job.ClaimedAt, &job.ClaimedBy, &job.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

// CountByState returns the number of jobs currently in the given state, used
// for queue-depth health reporting.
func (s *JobStore) CountByState(ctx context.Context, state string) (int, error) {
	var count int
	err := s.db.QueryRow(ctx, `SELECT count(*) FROM embedding_jobs WHERE state = $1`, state).Scan(&count)
	return count, err
}

// ReapStale finds jobs stuck in "processing" past the staleness threshold
// (a worker died mid-claim without reaching a terminal state) and requeues
// them as pending, incrementing retry_count exactly like a normal failure.
func (s *JobStore) ReapStale(ctx context.Context, olderThan time.Duration, maxRetries int) (int, error) {
	threshold := time.Now().Add(-olderThan)

	rows, err := s.db.Query(ctx, `
		SELECT id, retry_count FROM embedding_jobs
		WHERE state = $1 AND claimed_at IS NOT NULL AND claimed_at < $2`,
		JobStateProcessing, threshold,
	)
	if err != nil {
		return 0, err
	}
	type stale struct {
		id         uuid.UUID
		retryCount int
	}
	var staleJobs []stale
	for rows.Next() {
		var j stale
		if err := rows.Scan(&j.id, &j.retryCount); err != nil {
			rows.Close()
			return 0, err
		}
		staleJobs = append(staleJobs, j)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	recovered := 0
	for _, j := range staleJobs {
		if err := s.MarkFailed(ctx, j.id, "reaped: stale processing claim", maxRetries); err != nil {
			continue
		}
		recovered++
	}
	return recovered, nil
}
