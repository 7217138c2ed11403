// Package ingest implements episode creation: the single entry point that
// derives an episode's content from an action record, runs fact extraction,
// and writes the episode plus its pending embedding job atomically.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/nexuslabs/nexusmem/pkg/retrieval"
	"github.com/nexuslabs/nexusmem/pkg/storage"
)

// CreateEpisodeRequest is the input to Service.CreateEpisode, mirroring the
// action-record shape the agent submits.
type CreateEpisodeRequest struct {
	ActionType    string
	ActionDetails map[string]any
	ContextState  map[string]any
	Tags          []string
}

// CreateEpisodeResult is returned once the episode and its job are committed.
type CreateEpisodeResult struct {
	EpisodeID uuid.UUID
	JobID     uuid.UUID
}

// Invalidator is notified after a successful commit so read-through caches
// can drop stale entries. Best-effort: invalidation failures never fail
// ingestion.
type Invalidator interface {
	InvalidateRecent(ctx context.Context) error
}

// Service creates episodes and enqueues their embedding jobs.
type Service struct {
	pool        *storage.Pool
	invalidator Invalidator
}

// NewService builds an ingestion service. invalidator may be nil when no
// cache is configured.
func NewService(pool *storage.Pool, invalidator Invalidator) *Service {
	return &Service{pool: pool, invalidator: invalidator}
}

// CreateEpisode derives content and importance from the action record, runs
// fact extraction over the derived content, and inserts the episode plus its
// pending embedding job within a single transaction — following the
// teacher's transaction-scoping idiom (begin, defer rollback, commit on
// success). The embedding itself happens later and asynchronously via
// pkg/queue.
func (s *Service) CreateEpisode(ctx context.Context, req CreateEpisodeRequest) (*CreateEpisodeResult, error) {
	content, err := deriveContent(req.ActionType, req.ActionDetails)
	if err != nil {
		return nil, fmt.Errorf("ingest: derive content: %w", err)
	}
	if content == "" {
		return nil, fmt.Errorf("ingest: content is required")
	}

	importance := 0.5
	if v, ok := req.ActionDetails["importance_score"]; ok {
		if f, ok := toFloat(v); ok && f >= 0 && f <= 1 {
			importance = f
		}
	}

	priority := 0
	if v, ok := req.ActionDetails["priority"]; ok {
		if f, ok := toFloat(v); ok {
			priority = int(f)
		}
	}

	metadata := storage.EpisodeMetadata{
		Extra: map[string]any{
			"action_type":    req.ActionType,
			"action_details": req.ActionDetails,
			"context_state":  req.ContextState,
		},
	}
	if facts, ok := retrieval.ExtractFacts(content); ok {
		metadata.Facts = facts
	}

	tx, err := s.pool.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingest: begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	episode := &storage.Episode{
		Content:         content,
		ImportanceScore: importance,
		Tags:            req.Tags,
		Metadata:        metadata,
	}
	if err := s.pool.Episodes.CreateTx(ctx, tx, episode); err != nil {
		return nil, fmt.Errorf("ingest: create episode: %w", err)
	}

	job, err := s.pool.Jobs.EnqueueTx(ctx, tx, episode.ID, priority)
	if err != nil {
		return nil, fmt.Errorf("ingest: enqueue embedding job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ingest: commit: %w", err)
	}

	if s.invalidator != nil {
		_ = s.invalidator.InvalidateRecent(ctx)
	}

	return &CreateEpisodeResult{EpisodeID: episode.ID, JobID: job.ID}, nil
}

// deriveContent implements §4.B's content-derivation rule: an explicit
// "content" key wins, then a canonical JSON serialization of the whole
// action_details record, then the bare action_type as a last resort.
func deriveContent(actionType string, actionDetails map[string]any) (string, error) {
	if v, ok := actionDetails["content"]; ok {
		if s, ok := v.(string); ok && s != "" {
			return s, nil
		}
	}
	if len(actionDetails) > 0 {
		b, err := json.Marshal(actionDetails)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	return actionType, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
