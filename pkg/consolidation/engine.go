// Package consolidation implements the nightly batch that mimics biological
// sleep consolidation: it scores "breakthrough" episodes, traces their
// precursor chains backward, boosts the chains' consolidated salience,
// samples older high-value episodes for interleaved replay, and persists
// directed narrative traces between chain members.
package consolidation

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/storage"
)

// scoredEpisode mirrors the Python engine's per-run working copy of an
// episode: the persisted fields plus the two scores this run computes.
type scoredEpisode struct {
	storage.Episode
	BreakthroughScore        float64
	ConsolidatedSalience     *float64
}

// Engine runs ConsolidateDay against a storage pool.
type Engine struct {
	pool *storage.Pool
	cfg  *config.ConsolidationConfig
}

// NewEngine builds a consolidation engine.
func NewEngine(pool *storage.Pool, cfg *config.ConsolidationConfig) *Engine {
	return &Engine{pool: pool, cfg: cfg}
}

// BreakthroughSummary is one entry in a Report's top-5 list.
type BreakthroughSummary struct {
	EpisodeID         uuid.UUID
	ContentPrefix     string
	BreakthroughScore float64
	SalienceScore     float64
}

// Report summarizes one ConsolidateDay run.
type Report struct {
	Date                time.Time
	EpisodesProcessed   int
	BreakthroughCount   int
	ChainCount          int
	EpisodesBoosted     int
	TraceCount          int
	AvgBoost            float64
	MaxBoost            float64
	ProcessingDuration  time.Duration
	TopBreakthroughs    []BreakthroughSummary
	ReplaySampledCount  int
}

// ConsolidateDay runs the full seven-step pipeline for targetDate (UTC day
// boundaries) and persists its results.
func (e *Engine) ConsolidateDay(ctx context.Context, targetDate time.Time) (*Report, error) {
	start := time.Now()

	dayStart := time.Date(targetDate.Year(), targetDate.Month(), targetDate.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	// Step 1: fetch.
	episodes, err := e.pool.Episodes.GetByDateRange(ctx, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("consolidation: fetch episodes: %w", err)
	}
	if len(episodes) == 0 {
		return &Report{Date: dayStart, ProcessingDuration: time.Since(start)}, nil
	}

	scored := make([]*scoredEpisode, len(episodes))
	byID := make(map[uuid.UUID]*scoredEpisode, len(episodes))
	for i, ep := range episodes {
		scored[i] = &scoredEpisode{Episode: ep}
		byID[ep.ID] = scored[i]
	}

	// Step 2: breakthrough scoring.
	breakthroughs := e.identifyBreakthroughs(scored)

	// Step 3: backward chain tracing.
	chains := e.traceBreakthroughChains(breakthroughs, scored)

	// Step 4: consolidated salience / importance boost.
	var boosts []float64
	for _, chain := range chains {
		boosts = append(boosts, e.consolidateChain(chain)...)
	}

	// Step 5: interleaved replay sampling.
	replaySampled := 0
	if len(chains) > 0 {
		sampleSize := int(float64(len(chains)) * e.cfg.ReplaySampleRatio / (1 - e.cfg.ReplaySampleRatio))
		if sampleSize > 0 {
			minAge := time.Duration(e.cfg.ReplayMinAgeDays * 24 * float64(time.Hour))
			maxAge := time.Duration(e.cfg.ReplayMaxAgeDays * 24 * float64(time.Hour))
			replayed, err := e.pool.Episodes.GetOldImportant(ctx, minAge, maxAge, e.cfg.ReplaySalienceMin, sampleSize)
			if err != nil {
				return nil, fmt.Errorf("consolidation: interleaved replay sample: %w", err)
			}
			replaySampled = len(replayed)
		}
	}

	// Step 6: trace creation.
	traces := e.createTraces(chains)

	// Step 7: persist.
	boostedCount, err := e.persist(ctx, chains, traces)
	if err != nil {
		return nil, fmt.Errorf("consolidation: persist: %w", err)
	}

	var avgBoost, maxBoost float64
	if len(boosts) > 0 {
		sum := 0.0
		for _, b := range boosts {
			sum += b
			if b > maxBoost {
				maxBoost = b
			}
		}
		avgBoost = sum / float64(len(boosts))
	}

	top := breakthroughs
	if len(top) > 5 {
		top = top[:5]
	}
	summaries := make([]BreakthroughSummary, len(top))
	for i, b := range top {
		prefix := b.Content
		if len(prefix) > 100 {
			prefix = prefix[:100]
		}
		summaries[i] = BreakthroughSummary{
			EpisodeID:         b.ID,
			ContentPrefix:     prefix,
			BreakthroughScore: b.BreakthroughScore,
			SalienceScore:     salienceOf(b.Episode),
		}
	}

	return &Report{
		Date:               dayStart,
		EpisodesProcessed:  len(episodes),
		BreakthroughCount:  len(breakthroughs),
		ChainCount:         len(chains),
		EpisodesBoosted:    boostedCount,
		TraceCount:         len(traces),
		AvgBoost:           avgBoost,
		MaxBoost:           maxBoost,
		ProcessingDuration: time.Since(start),
		TopBreakthroughs:   summaries,
		ReplaySampledCount: replaySampled,
	}, nil
}

// emotionSum adds the four signals that form the "breakthrough emotion"
// term of the scoring formula.
func emotionSum(ep storage.Episode) float64 {
	e := ep.Metadata.Emotional8D
	if e == nil {
		return 0
	}
	return e.Joy + e.Trust + e.Anticipation + e.Surprise
}

func valenceOf(ep storage.Episode) float64 {
	if ep.Metadata.Somatic7D == nil {
		return 0
	}
	return ep.Metadata.Somatic7D.Valence
}

func salienceOf(ep storage.Episode) float64 {
	if ep.Metadata.SalienceScore == nil {
		return 0.5
	}
	return *ep.Metadata.SalienceScore
}

func sessionOf(ep storage.Episode) string {
	if ep.Metadata.Extra == nil {
		return ""
	}
	if v, ok := ep.Metadata.Extra["session_id"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// identifyBreakthroughs computes the composite breakthrough score
// (0.40*salience + 0.25*mean(joy,trust,anticipation,surprise) +
// 0.15*max(0,valence) + 0.20*importance) for every episode and returns
// those at or above the 80th percentile, sorted by score descending.
func (e *Engine) identifyBreakthroughs(episodes []*scoredEpisode) []*scoredEpisode {
	if len(episodes) == 0 {
		return nil
	}

	for _, ep := range episodes {
		score := salienceOf(ep.Episode) * 0.40
		score += (emotionSum(ep.Episode) / 4) * 0.25
		score += math.Max(0, valenceOf(ep.Episode)) * 0.15
		score += ep.ImportanceScore * 0.20
		ep.BreakthroughScore = score
	}

	threshold := percentile(scoresOf(episodes), e.cfg.BreakthroughPercentile)

	var breakthroughs []*scoredEpisode
	for _, ep := range episodes {
		if ep.BreakthroughScore >= threshold {
			breakthroughs = append(breakthroughs, ep)
		}
	}
	sort.Slice(breakthroughs, func(i, j int) bool {
		return breakthroughs[i].BreakthroughScore > breakthroughs[j].BreakthroughScore
	})
	return breakthroughs
}

func scoresOf(episodes []*scoredEpisode) []float64 {
	out := make([]float64, len(episodes))
	for i, e := range episodes {
		out[i] = e.BreakthroughScore
	}
	return out
}

// percentile implements linear-interpolation percentile over an unsorted
// slice, matching numpy.percentile's default method.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}
	frac := rank - float64(lower)
	return sorted[lower] + frac*(sorted[upper]-sorted[lower])
}

// traceBreakthroughChains scans backward up to TraceLookback hours from each
// breakthrough, most-recent-first, accepting candidates related by session,
// embedding similarity, shared tags, or temporal proximity to the current
// search horizon (which advances to each accepted candidate's timestamp).
// Chains shorter than 2 episodes are dropped.
func (e *Engine) traceBreakthroughChains(breakthroughs, all []*scoredEpisode) [][]*scoredEpisode {
	var chains [][]*scoredEpisode

	for _, breakthrough := range breakthroughs {
		chain := []*scoredEpisode{breakthrough}
		horizon := breakthrough.CreatedAt
		windowStart := breakthrough.CreatedAt.Add(-e.cfg.TraceLookback)

		var candidates []*scoredEpisode
		for _, ep := range all {
			if ep.ID == breakthrough.ID {
				continue
			}
			if !ep.CreatedAt.Before(windowStart) && ep.CreatedAt.Before(breakthrough.CreatedAt) {
				candidates = append(candidates, ep)
			}
		}
		sort.Slice(candidates, func(i, j int) bool { return candidates[i].CreatedAt.After(candidates[j].CreatedAt) })

		for _, candidate := range candidates {
			if e.isRelated(candidate.Episode, breakthrough.Episode, horizon) {
				chain = append([]*scoredEpisode{candidate}, chain...)
				horizon = candidate.CreatedAt
			}
		}

		if len(chain) >= 2 {
			chains = append(chains, chain)
		}
	}

	return chains
}

// isRelated implements the four relatedness criteria: same session, cosine
// similarity above SimilarityThreshold, at least SharedTagThreshold shared
// tags, or within TemporalProximity of the current search horizon.
func (e *Engine) isRelated(candidate, breakthrough storage.Episode, horizon time.Time) bool {
	if s1, s2 := sessionOf(candidate), sessionOf(breakthrough); s1 != "" && s2 != "" && s1 == s2 {
		return true
	}
	if len(candidate.Embedding) > 0 && len(breakthrough.Embedding) > 0 {
		if cosineSimilarity(candidate.Embedding, breakthrough.Embedding) > e.cfg.SimilarityThreshold {
			return true
		}
	}
	if sharedTagCount(candidate.Tags, breakthrough.Tags) >= e.cfg.SharedTagThreshold {
		return true
	}
	if horizon.Sub(candidate.CreatedAt) < e.cfg.TemporalProximity {
		return true
	}
	return false
}

func sharedTagCount(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	count := 0
	for _, t := range b {
		if set[t] {
			count++
		}
	}
	return count
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// consolidateChain computes consolidated_salience_score and boosts
// importance_score for every episode in chain, mutating the working copies
// in place. Returns the boost applied to each episode (for reporting).
func (e *Engine) consolidateChain(chain []*scoredEpisode) []float64 {
	if len(chain) < 2 {
		return nil
	}

	breakthrough := chain[len(chain)-1]
	breakthroughScore := breakthrough.BreakthroughScore

	boosts := make([]float64, 0, len(chain))
	for i, ep := range chain {
		positionWeight := 1.0 - float64(i)/float64(len(chain))
		hoursDiff := breakthrough.CreatedAt.Sub(ep.CreatedAt).Hours()
		temporalDecay := math.Exp(-hoursDiff / e.cfg.TemporalDecayHours)

		boost := breakthroughScore * positionWeight * temporalDecay * e.cfg.BoostWeight
		if boost > e.cfg.BoostCap {
			boost = e.cfg.BoostCap
		}

		consolidated := math.Min(salienceOf(ep.Episode)+boost, 1.0)
		ep.ConsolidatedSalience = &consolidated
		ep.ImportanceScore = math.Min(ep.ImportanceScore*(1.0+boost), 1.0)

		boosts = append(boosts, boost)
	}
	return boosts
}

// Trace is a narrative edge emitted by createTraces, ready to persist.
type Trace struct {
	SourceID    uuid.UUID
	TargetID    uuid.UUID
	TraceType   string
	Strength    float64
	NarrativeID string
}

// createTraces emits one narrative edge between every consecutive pair of
// episodes in each chain, with trace type initiator/progression/conclusion
// and strength 1/(1+Δh/3.0).
func (e *Engine) createTraces(chains [][]*scoredEpisode) []Trace {
	var traces []Trace
	dateStr := time.Now().UTC().Format("20060102")

	for chainIdx, chain := range chains {
		narrativeID := fmt.Sprintf("chain_%s_%d", dateStr, chainIdx)

		for i := 0; i < len(chain)-1; i++ {
			source, target := chain[i], chain[i+1]
			hoursGap := target.CreatedAt.Sub(source.CreatedAt).Hours()
			strength := 1.0 / (1.0 + hoursGap/3.0)

			traceType := storage.TraceTypeProgression
			switch {
			case i == 0:
				traceType = storage.TraceTypeInitiator
			case i == len(chain)-2:
				traceType = storage.TraceTypeConclusion
			}

			traces = append(traces, Trace{
				SourceID: source.ID, TargetID: target.ID,
				TraceType: traceType, Strength: strength, NarrativeID: narrativeID,
			})
		}
	}
	return traces
}

// persist writes the boosted episodes' metadata/importance and every trace
// within a single transaction, returning the number of episodes boosted.
func (e *Engine) persist(ctx context.Context, chains [][]*scoredEpisode, traces []Trace) (int, error) {
	tx, err := e.pool.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	now := time.Now()
	boosted := 0
	seen := make(map[uuid.UUID]bool)
	for _, chain := range chains {
		for _, ep := range chain {
			if ep.ConsolidatedSalience == nil || seen[ep.ID] {
				continue
			}
			seen[ep.ID] = true
			boosted++

			metadata := ep.Metadata
			if metadata.Consolidation == nil {
				metadata.Consolidation = &storage.ConsolidationOutputs{}
			}
			metadata.Consolidation.ConsolidatedSalienceScore = *ep.ConsolidatedSalience
			metadata.Consolidation.LastConsolidatedAt = &now
			metadata.SalienceScore = ep.ConsolidatedSalience

			if err := e.pool.Episodes.UpdateMetadataTx(ctx, tx, ep.ID, metadata); err != nil {
				return 0, fmt.Errorf("update metadata for %s: %w", ep.ID, err)
			}
			if err := e.pool.Episodes.UpdateImportanceTx(ctx, tx, ep.ID, ep.ImportanceScore); err != nil {
				return 0, fmt.Errorf("update importance for %s: %w", ep.ID, err)
			}
		}
	}

	for _, t := range traces {
		trace := &storage.NarrativeTrace{
			SourceEpisodeID: t.SourceID,
			TargetEpisodeID: t.TargetID,
			TraceType:       t.TraceType,
			Strength:        t.Strength,
			NarrativeID:     t.NarrativeID,
		}
		if err := e.pool.Traces.CreateTx(ctx, tx, trace); err != nil {
			return 0, fmt.Errorf("store trace: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return boosted, nil
}
