// Package storage is the Postgres access layer for episodic memory: episode
// CRUD and vector search, the embedding job queue, and narrative traces.
//
// Queries are hand-written SQL over jackc/pgx/v5, not a generated ORM client
// — see DESIGN.md for why. The table layout is defined by the SQL files in
// migrations/.
package storage

import (
	"time"

	"github.com/google/uuid"
)

// Episode is a single unit of experience the agent has had.
type Episode struct {
	ID               uuid.UUID
	Content          string
	ImportanceScore  float64
	Tags             []string
	CreatedAt        time.Time
	Embedding        []float32 // nil until the embedding job reaches "done"
	EmbeddingVersion string
	Metadata         EpisodeMetadata
}

// EpisodeMetadata is the nominally-typed view of the episode's free-form
// JSON metadata column. Extra carries forward-compatible fields this
// version doesn't know about.
type EpisodeMetadata struct {
	Facts          *Facts                `json:"facts,omitempty"`
	AccessTracking *AccessTracking       `json:"access_tracking,omitempty"`
	Emotional8D    *Emotional8D          `json:"emotional_8d,omitempty"`
	Somatic7D      *Somatic7D            `json:"somatic_7d,omitempty"`
	SalienceScore  *float64              `json:"salience_score,omitempty"`
	Consolidation  *ConsolidationOutputs `json:"consolidation,omitempty"`
	TemporalRefs   []TemporalRef         `json:"temporal_refs,omitempty"`
	Extra          map[string]any        `json:"-"`
}

// AccessTracking records how often and how recently an episode has been
// retrieved, feeding the decay model's access_factor term.
type AccessTracking struct {
	AccessCount  int        `json:"access_count"`
	LastAccessed *time.Time `json:"last_accessed,omitempty"`
}

// Emotional8D mirrors the 8-dimensional emotional state vector produced by
// the upstream emotional/somatic sensors (an opaque producer — nexusmem
// only consumes and scores these values, it never computes them).
type Emotional8D struct {
	Joy          float64 `json:"joy"`
	Trust        float64 `json:"trust"`
	Fear         float64 `json:"fear"`
	Surprise     float64 `json:"surprise"`
	Sadness      float64 `json:"sadness"`
	Disgust      float64 `json:"disgust"`
	Anger        float64 `json:"anger"`
	Anticipation float64 `json:"anticipation"`
}

// Somatic7D mirrors the 7-dimensional Damasio somatic-marker vector, also
// an opaque upstream producer.
type Somatic7D struct {
	Valence             float64 `json:"valence"`
	Arousal             float64 `json:"arousal"`
	BodyState           float64 `json:"body_state"`
	CognitiveLoad       float64 `json:"cognitive_load"`
	EmotionalRegulation float64 `json:"emotional_regulation"`
	SocialEngagement    float64 `json:"social_engagement"`
	TemporalAwareness   float64 `json:"temporal_awareness"`
}

// ConsolidationOutputs holds the fields the nightly consolidation engine
// writes back onto an episode it has traced into a narrative chain.
type ConsolidationOutputs struct {
	ConsolidatedSalienceScore float64    `json:"consolidated_salience_score"`
	NarrativeID               string     `json:"narrative_id,omitempty"`
	LastConsolidatedAt        *time.Time `json:"last_consolidated_at,omitempty"`
}

// TemporalRef is a directed edge embedded in an episode's metadata linking
// it to another episode (e.g. "before", "causes").
type TemporalRef struct {
	TargetID  uuid.UUID `json:"target_id"`
	Relation  string    `json:"relation"`
	CreatedAt time.Time `json:"created_at"`
}

// Facts is the structured-fact record extracted from (or manually attached
// to) an episode's content. Field names and ranges mirror the upstream
// hybrid-memory fact schema.
type Facts struct {
	NexusVersion    string  `json:"nexus_version,omitempty"`
	APIVersion      string  `json:"api_version,omitempty"`
	AccuracyPercent *float64 `json:"accuracy_percent,omitempty"` // [0,100]
	LatencyMS       *float64 `json:"latency_ms,omitempty"`
	EpisodeCount    *int     `json:"episode_count,omitempty"`
	QueryCount      *int     `json:"query_count,omitempty"`
	TestCount       *int     `json:"test_count,omitempty"`
	SuccessRate     *float64 `json:"success_rate,omitempty"` // [0,100]
	Status          string   `json:"status,omitempty"`       // normalized closed vocabulary
	PhaseNumber     *int     `json:"phase_number,omitempty"`
	SessionNumber   *int     `json:"session_number,omitempty"`
	CompletionPct   *float64 `json:"completion_percent,omitempty"`
	FeatureName     string   `json:"feature_name,omitempty"`
	ImplHours       *float64 `json:"implementation_time_hours,omitempty"`
	LinesOfCode     *int     `json:"lines_of_code,omitempty"`
	FilesCreated    *int     `json:"files_created,omitempty"`
	FilesModified   *int     `json:"files_modified,omitempty"`
	DecayScore      *float64 `json:"decay_score,omitempty"` // [0,1]
	ImportanceOverride *float64 `json:"importance_override,omitempty"` // [0,1]
	BenchmarkName   string   `json:"benchmark_name,omitempty"`
	BenchmarkScore  *float64 `json:"benchmark_score,omitempty"`
	BaselineScore   *float64 `json:"baseline_score,omitempty"`
	BugCount        *int     `json:"bug_count,omitempty"`
	ErrorCount      *int     `json:"error_count,omitempty"`
	DurationHours   *float64 `json:"duration_hours,omitempty"`
	StartDate       string   `json:"start_date,omitempty"`
	EndDate         string   `json:"end_date,omitempty"`
	CommitHash      string   `json:"commit_hash,omitempty"`
	PullRequestNum  *int     `json:"pull_request_number,omitempty"`
	Custom          map[string]any `json:"custom,omitempty"`

	ExtractionMethod     string    `json:"extraction_method,omitempty"`
	ExtractionConfidence float64   `json:"extraction_confidence"`
	LastUpdated          time.Time `json:"last_updated"`
}

// Normalized status vocabulary for Facts.Status.
const (
	StatusComplete   = "COMPLETE"
	StatusInProgress = "IN_PROGRESS"
	StatusPending    = "PENDING"
	StatusFailed     = "FAILED"
)

// Embedding job lifecycle states.
const (
	JobStatePending    = "pending"
	JobStateProcessing = "processing"
	JobStateDone       = "done"
	JobStateDead       = "dead"
)

// EmbeddingJob tracks the async embedding of a single episode.
type EmbeddingJob struct {
	ID          uuid.UUID
	EpisodeID   uuid.UUID
	State       string
	Priority    int
	RetryCount  int
	LastError   string
	EnqueuedAt  time.Time
	ProcessedAt *time.Time
	ClaimedAt   *time.Time
	ClaimedBy   string
}

// Narrative trace types assigned by the consolidation engine.
const (
	TraceTypeInitiator   = "initiator"
	TraceTypeProgression = "progression"
	TraceTypeConclusion  = "conclusion"
)

// NarrativeTrace is a directed edge between two episodes created by
// consolidation, distinct from the metadata-embedded TemporalRef.
type NarrativeTrace struct {
	ID               uuid.UUID
	SourceEpisodeID  uuid.UUID
	TargetEpisodeID  uuid.UUID
	TraceType        string
	Strength         float64
	NarrativeID      string
	CreatedAt        time.Time
}

// EpisodeWithScore pairs an episode with a similarity/relevance score for
// ranked retrieval results.
type EpisodeWithScore struct {
	Episode
	Score float64
}
