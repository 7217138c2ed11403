// Package decay computes the importance/decay score that ranks episodes for
// pruning, and implements the analysis, preview, and (deliberately
// unimplemented) execution operations built on top of it.
package decay

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/storage"
)

// ErrNotImplemented is returned by ExecutePruning when dry_run=false: the
// live contract is a safety no-op, the archive-table delete path is
// deferred (see DESIGN.md Open Question decision).
var ErrNotImplemented = errors.New("decay: execute_pruning with dry_run=false is not implemented")

// protectedTags can never be pruning candidates regardless of decay score.
var protectedTags = map[string]bool{
	"milestone":     true,
	"critical":      true,
	"protected":     true,
	"consciousness": true,
}

// Service computes decay scores and runs the analysis/pruning operations.
type Service struct {
	pool *storage.Pool
	cfg  *config.DecayConfig
}

// NewService builds a decay service.
func NewService(pool *storage.Pool, cfg *config.DecayConfig) *Service {
	return &Service{pool: pool, cfg: cfg}
}

// Score computes the pure decay-score function of
// (importance_score, created_at, metadata): 0.5*importance + 0.3*recency +
// 0.2*access_factor, clamped to [0,1]. Holding importance and access
// tracking fixed, the result is non-increasing in age (decay monotonicity).
func (s *Service) Score(importance float64, createdAt time.Time, access *storage.AccessTracking) float64 {
	ageDays := time.Since(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	recency := math.Pow(0.5, ageDays/s.cfg.HalfLifeDays)
	accessFactor := accessFactor(access)

	score := 0.5*importance + 0.3*recency + 0.2*accessFactor
	return clamp01(score)
}

// accessFactor derives a bounded [0,1] signal from access_tracking: 0 if
// never accessed, otherwise a combination of log-scaled access_count and
// recency of last_accessed.
func accessFactor(access *storage.AccessTracking) float64 {
	if access == nil || access.AccessCount == 0 {
		return 0
	}
	countSignal := math.Log1p(float64(access.AccessCount)) / math.Log1p(100)
	if countSignal > 1 {
		countSignal = 1
	}

	recencySignal := 0.0
	if access.LastAccessed != nil {
		daysSince := time.Since(*access.LastAccessed).Hours() / 24
		if daysSince < 0 {
			daysSince = 0
		}
		recencySignal = math.Pow(0.5, daysSince/14)
	}

	return clamp01(0.5*countSignal + 0.5*recencySignal)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DecayBand is one of the five decay-score buckets in an analysis report.
type DecayBand struct {
	Low, High float64
	Count     int
}

// AnalysisReport summarizes decay scores across the corpus.
type AnalysisReport struct {
	Bands        []DecayBand
	VeryLowCount int // score < 0.2
	VeryHighCount int // score > 0.7
	TotalScored  int
}

// AnalyzeDecay buckets episodes at least minAgeDays old into five decay-score
// bands.
func (s *Service) AnalyzeDecay(ctx context.Context, limit int, minAgeDays float64) (*AnalysisReport, error) {
	episodes, err := s.pool.Episodes.GetForDecayAnalysis(ctx)
	if err != nil {
		return nil, fmt.Errorf("decay: analyze: %w", err)
	}

	bands := []DecayBand{{0.0, 0.2, 0}, {0.2, 0.4, 0}, {0.4, 0.6, 0}, {0.6, 0.8, 0}, {0.8, 1.0, 0}}
	report := &AnalysisReport{Bands: bands}

	now := time.Now()
	scored := 0
	for _, e := range episodes {
		ageDays := now.Sub(e.CreatedAt).Hours() / 24
		if ageDays < minAgeDays {
			continue
		}
		if limit > 0 && scored >= limit {
			break
		}
		score := s.Score(e.ImportanceScore, e.CreatedAt, e.Metadata.AccessTracking)
		scored++
		for i := range report.Bands {
			if score >= report.Bands[i].Low && (score < report.Bands[i].High || (i == len(report.Bands)-1 && score <= report.Bands[i].High)) {
				report.Bands[i].Count++
				break
			}
		}
		if score < 0.2 {
			report.VeryLowCount++
		}
		if score > 0.7 {
			report.VeryHighCount++
		}
	}
	report.TotalScored = scored
	return report, nil
}

// PruningCandidate is one episode considered for pruning.
type PruningCandidate struct {
	EpisodeID    uuid.UUID
	DecayScore   float64
	IsProtected  bool
}

// PreviewPruning returns the lowest-scored candidates up to maxPruneCount,
// annotated with whether each is protected from pruning regardless of score.
func (s *Service) PreviewPruning(ctx context.Context, minScoreThreshold, minAgeDays float64, maxPruneCount int) ([]PruningCandidate, error) {
	episodes, err := s.pool.Episodes.GetForDecayAnalysis(ctx)
	if err != nil {
		return nil, fmt.Errorf("decay: preview pruning: %w", err)
	}

	now := time.Now()
	var candidates []PruningCandidate
	for _, e := range episodes {
		ageDays := now.Sub(e.CreatedAt).Hours() / 24
		score := s.Score(e.ImportanceScore, e.CreatedAt, e.Metadata.AccessTracking)
		if score > minScoreThreshold {
			continue
		}
		candidates = append(candidates, PruningCandidate{
			EpisodeID:   e.ID,
			DecayScore:  score,
			IsProtected: isProtected(e, ageDays, minAgeDays),
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].DecayScore < candidates[j].DecayScore })
	if maxPruneCount > 0 && len(candidates) > maxPruneCount {
		candidates = candidates[:maxPruneCount]
	}
	return candidates, nil
}

func isProtected(e storage.Episode, ageDays, minAgeDays float64) bool {
	if e.ImportanceScore > 0.8 {
		return true
	}
	for _, t := range e.Tags {
		if protectedTags[t] {
			return true
		}
	}
	if ageDays < minAgeDays {
		return true
	}
	if e.Metadata.AccessTracking != nil && e.Metadata.AccessTracking.LastAccessed != nil {
		if time.Since(*e.Metadata.AccessTracking.LastAccessed) < 7*24*time.Hour {
			return true
		}
	}
	return false
}

// ExecutionReport is the result of ExecutePruning(dry_run=true).
type ExecutionReport struct {
	WouldPruneCount int
}

// ExecutePruning implements §4.E's safety-gated pruning execution.
// dry_run=true (the default) counts candidates that would be pruned,
// excluding protected ones, and never writes. dry_run=false always fails
// with ErrNotImplemented — the archive-table delete path is a deferred
// design decision, not a missing feature (property 12: pruning safety).
func (s *Service) ExecutePruning(ctx context.Context, minScoreThreshold, minAgeDays float64, maxPruneCount int, dryRun bool) (*ExecutionReport, error) {
	if !dryRun {
		return nil, ErrNotImplemented
	}
	candidates, err := s.PreviewPruning(ctx, minScoreThreshold, minAgeDays, maxPruneCount)
	if err != nil {
		return nil, err
	}
	count := 0
	for _, c := range candidates {
		if !c.IsProtected {
			count++
		}
	}
	return &ExecutionReport{WouldPruneCount: count}, nil
}
