// Package retrieval implements the five read-side query modes over episodic
// memory — semantic similarity, recency, temporal windows, graph-traversal
// relatedness, and structured fact lookup — plus the hybrid router and the
// fact-extraction pipeline that feeds both ingestion and D5.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nexuslabs/nexusmem/pkg/storage"
)

// ErrFactNotFound is returned by Facts (D5) when no episode carries the
// requested fact key.
var ErrFactNotFound = errors.New("retrieval: no matching fact")

// Encoder turns query text into an embedding for semantic search. Shared
// shape with pkg/queue.Encoder (same contract, independent interface to
// keep the two packages decoupled).
type Encoder interface {
	Encode(ctx context.Context, content string) ([]float32, string, error)
}

// RecentCache fronts D2 with a read-through cache. Nil means no cache is
// configured and reads always go to storage.
type RecentCache interface {
	GetRecent(ctx context.Context, limit int) ([]storage.Episode, bool)
	SetRecent(ctx context.Context, limit int, episodes []storage.Episode)
}

// Service implements the retrieval engine (D1-D6).
type Service struct {
	pool    *storage.Pool
	encoder Encoder
	cache   RecentCache
}

// NewService builds a retrieval service. cache may be nil.
func NewService(pool *storage.Pool, encoder Encoder, cache RecentCache) *Service {
	return &Service{pool: pool, encoder: encoder, cache: cache}
}

// ScoredResult is one hit from a scored retrieval (D1), pairing the episode
// with its similarity score.
type ScoredResult struct {
	Episode    storage.Episode
	Similarity float64
}

// Search runs D1 — semantic search. limit is clamped to [1,100] and
// minSimilarity to [0,1] per the semantic-search contract. Every result's
// access telemetry is updated best-effort after the read.
func (s *Service) Search(ctx context.Context, queryText string, limit int, minSimilarity float64) ([]ScoredResult, error) {
	limit = clampLimit(limit, 1, 100)
	if minSimilarity < 0 {
		minSimilarity = 0
	}
	if minSimilarity > 1 {
		minSimilarity = 1
	}

	vec, _, err := s.encoder.Encode(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("retrieval: encode query: %w", err)
	}

	hits, err := s.pool.Episodes.FindSimilar(ctx, vec, minSimilarity, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: semantic search: %w", err)
	}

	results := make([]ScoredResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, ScoredResult{Episode: h.Episode, Similarity: h.Score})
		s.recordAccessBestEffort(h.ID)
	}
	return results, nil
}

// Recent runs D2 — the most recently created episodes, newest first,
// fronted by the read-through cache when one is configured.
func (s *Service) Recent(ctx context.Context, limit int) ([]storage.Episode, error) {
	limit = clampLimit(limit, 1, 100)

	if s.cache != nil {
		if episodes, ok := s.cache.GetRecent(ctx, limit); ok {
			return episodes, nil
		}
	}

	episodes, err := s.pool.Episodes.GetRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("retrieval: recent: %w", err)
	}

	if s.cache != nil {
		s.cache.SetRecent(ctx, limit, episodes)
	}
	return episodes, nil
}

// Before runs D3 — episodes strictly before t, newest first. Does not
// record access telemetry (large historical scans shouldn't pollute it).
func (s *Service) Before(ctx context.Context, t time.Time, limit int, tags []string) ([]storage.Episode, error) {
	return s.pool.Episodes.GetBefore(ctx, t, clampLimit(limit, 1, 100), tags)
}

// After runs D3 — episodes strictly after t, oldest first. Records access
// telemetry for every result.
func (s *Service) After(ctx context.Context, t time.Time, limit int, tags []string) ([]storage.Episode, error) {
	episodes, err := s.pool.Episodes.GetAfter(ctx, t, clampLimit(limit, 1, 100), tags)
	if err != nil {
		return nil, err
	}
	for _, e := range episodes {
		s.recordAccessBestEffort(e.ID)
	}
	return episodes, nil
}

// Range runs D3 — episodes with created_at in [start, end], oldest first.
// Records access telemetry for every result.
func (s *Service) Range(ctx context.Context, start, end time.Time, limit int, tags []string) ([]storage.Episode, error) {
	episodes, err := s.pool.Episodes.GetRange(ctx, start, end, clampLimit(limit, 1, 100), tags)
	if err != nil {
		return nil, err
	}
	for _, e := range episodes {
		s.recordAccessBestEffort(e.ID)
	}
	return episodes, nil
}

// validRelations is the closed vocabulary for Temporal Edge relationship
// labels.
var validRelations = map[string]bool{"before": true, "after": true, "causes": true, "effects": true}

// ErrUnknownRelationship is returned by Related/Link for an out-of-vocabulary
// relationship label.
var ErrUnknownRelationship = errors.New("retrieval: unknown relationship")

// Related runs D4 — temporally related episodes, traversing the source
// episode's embedded temporal_refs (optionally filtered by relationship),
// newest first.
func (s *Service) Related(ctx context.Context, episodeID uuid.UUID, relationship string) ([]storage.Episode, error) {
	if relationship != "" && !validRelations[relationship] {
		return nil, ErrUnknownRelationship
	}

	source, err := s.pool.Episodes.GetByID(ctx, episodeID)
	if err != nil {
		return nil, fmt.Errorf("retrieval: related: %w", err)
	}

	var targetIDs []uuid.UUID
	for _, ref := range source.Metadata.TemporalRefs {
		if relationship != "" && ref.Relation != relationship {
			continue
		}
		targetIDs = append(targetIDs, ref.TargetID)
	}
	if len(targetIDs) == 0 {
		return nil, nil
	}

	episodes, err := s.pool.Episodes.GetByIDs(ctx, targetIDs)
	if err != nil {
		return nil, fmt.Errorf("retrieval: related: %w", err)
	}
	sortNewestFirst(episodes)
	return episodes, nil
}

// Link creates a Temporal Edge (add_temporal_ref) from source to target.
func (s *Service) Link(ctx context.Context, sourceID, targetID uuid.UUID, relationship string) error {
	if !validRelations[relationship] {
		return ErrUnknownRelationship
	}
	return s.pool.Episodes.AddTemporalRef(ctx, sourceID, targetID, relationship)
}

// FactResult is the scalar answer produced by D5/D6's fact path.
type FactResult struct {
	EpisodeID  uuid.UUID
	Value      any
	Confidence float64
	CreatedAt  time.Time
}

// Facts runs D5 — fact lookup. Returns ErrFactNotFound if zero episodes
// carry factKey.
func (s *Service) Facts(ctx context.Context, factKey string, tags []string, after, before *time.Time, limit int, order string) (*FactResult, error) {
	episodes, err := s.pool.Episodes.GetWithFact(ctx, factKey, tags, after, before, clampLimit(limit, 1, 100), order)
	if err != nil {
		return nil, fmt.Errorf("retrieval: facts: %w", err)
	}
	if len(episodes) == 0 {
		return nil, ErrFactNotFound
	}

	first := episodes[0]
	value, ok := FactFieldValue(first.Metadata.Facts, factKey)
	if !ok {
		return nil, ErrFactNotFound
	}

	confidence := 0.0
	if first.Metadata.Facts != nil {
		confidence = first.Metadata.Facts.ExtractionConfidence
	}
	return &FactResult{EpisodeID: first.ID, Value: value, Confidence: confidence, CreatedAt: first.CreatedAt}, nil
}

// HybridResult is the unified response for D6.
type HybridResult struct {
	Source     string // "fact" or "narrative"
	Value      any
	Confidence float64
	EpisodeID  uuid.UUID
}

// Hybrid runs D6 — routes to D5 (fact) or D1 (narrative) depending on
// prefer and a keyword classification of query. Never lets a FactNotFound
// from the fact path leak past a narrative fallback (property 11).
func (s *Service) Hybrid(ctx context.Context, query, prefer string, tags []string, limit int) (*HybridResult, error) {
	factKey := ""
	if prefer == "fact" || prefer == "auto" || prefer == "" {
		factKey = ClassifyFactType(query)
	}

	tryFact := prefer == "fact" || (prefer == "auto" || prefer == "") && factKey != ""
	if tryFact && factKey != "" {
		fact, err := s.Facts(ctx, factKey, tags, nil, nil, 1, "desc")
		if err == nil {
			return &HybridResult{Source: "fact", Value: fact.Value, Confidence: fact.Confidence, EpisodeID: fact.EpisodeID}, nil
		}
		if !errors.Is(err, ErrFactNotFound) {
			return nil, err
		}
		if prefer == "fact" {
			return nil, ErrFactNotFound
		}
		// auto/"" fall through to narrative — no 404 leak.
	}

	hits, err := s.Search(ctx, query, clampLimit(limit, 1, 10), 0)
	if err != nil {
		return nil, fmt.Errorf("retrieval: hybrid narrative fallback: %w", err)
	}
	if len(hits) == 0 {
		return nil, ErrFactNotFound
	}
	top := hits[0]
	return &HybridResult{Source: "narrative", Value: top.Episode.Content, Confidence: top.Similarity, EpisodeID: top.Episode.ID}, nil
}

func (s *Service) recordAccessBestEffort(id uuid.UUID) {
	if err := s.pool.Episodes.RecordAccess(context.Background(), id); err != nil {
		slog.Warn("Access tracking update failed", "episode_id", id, "error", err)
	}
}

func clampLimit(limit, min, max int) int {
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}

func sortNewestFirst(episodes []storage.Episode) {
	sort.Slice(episodes, func(i, j int) bool {
		return episodes[i].CreatedAt.After(episodes[j].CreatedAt)
	})
}

// factTypeKeywords maps a keyword found in a query to the Facts field its
// classifier implies, for D6's auto-prefer routing.
var factTypeKeywords = map[string]string{
	"version":  "nexus_version",
	"accuracy": "accuracy_percent",
	"latency":  "latency_ms",
	"count":    "episode_count",
	"status":   "status",
}

// ClassifyFactType infers a Facts field name from query text for the hybrid
// router's "auto" mode — a keyword classifier, not a general NLP model,
// matching the scope of D6.
func ClassifyFactType(query string) string {
	lower := strings.ToLower(query)
	for kw, field := range factTypeKeywords {
		if strings.Contains(lower, kw) {
			return field
		}
	}
	return ""
}
