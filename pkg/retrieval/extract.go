package retrieval

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nexuslabs/nexusmem/pkg/storage"
)

// factPattern is one field's extractor: apply runs a single regex over the
// content and, on a match, sets that field and reports true.
type factPattern struct {
	apply func(fields *storage.Facts, content string) bool
}

var factPatterns = []factPattern{
	{apply: matchString(`(?i)nexus\s*(?:version|v)\s*[:=]?\s*v?(\d+\.\d+(?:\.\d+)?)`, func(f *storage.Facts, v string) { f.NexusVersion = v })},
	{apply: matchString(`(?i)api\s*version\s*[:=]?\s*v?(\d+\.\d+(?:\.\d+)?)`, func(f *storage.Facts, v string) { f.APIVersion = v })},
	{apply: matchFloat(`(?i)accuracy\s*[:=]?\s*(\d+(?:\.\d+)?)\s*%`, func(f *storage.Facts, v float64) { f.AccuracyPercent = &v })},
	{apply: matchFloat(`(?i)latency\s*[:=]?\s*(\d+(?:\.\d+)?)\s*ms`, func(f *storage.Facts, v float64) { f.LatencyMS = &v })},
	{apply: matchInt(`(?i)(?:(\d+)\s*episodes?\b|episodes?\s*[:=]?\s*(\d+)\b)`, func(f *storage.Facts, v int) { f.EpisodeCount = &v })},
	{apply: matchInt(`(?i)(\d+)\s*quer(?:y|ies)\b`, func(f *storage.Facts, v int) { f.QueryCount = &v })},
	{apply: matchInt(`(?i)(\d+)\s*tests?\b`, func(f *storage.Facts, v int) { f.TestCount = &v })},
	{apply: matchFloat(`(?i)success\s*rate\s*[:=]?\s*(\d+(?:\.\d+)?)\s*%`, func(f *storage.Facts, v float64) { f.SuccessRate = &v })},
	{apply: matchStatus()},
	{apply: matchInt(`(?i)phase\s*[:#]?\s*(\d+)`, func(f *storage.Facts, v int) { f.PhaseNumber = &v })},
	{apply: matchInt(`(?i)session\s*[:#]?\s*(\d+)`, func(f *storage.Facts, v int) { f.SessionNumber = &v })},
	{apply: matchFloat(`(?i)completion\s*[:=]?\s*(\d+(?:\.\d+)?)\s*%`, func(f *storage.Facts, v float64) { f.CompletionPct = &v })},
	{apply: matchString(`(?i)feature\s*[:=]?\s*["']?([A-Za-z][\w\s-]{2,40}?)["']?(?:[.,\n]|$)`, func(f *storage.Facts, v string) { f.FeatureName = strings.TrimSpace(v) })},
	{apply: matchFloat(`(?i)(\d+(?:\.\d+)?)\s*hours?\s*(?:of\s*)?implementation`, func(f *storage.Facts, v float64) { f.ImplHours = &v })},
	{apply: matchInt(`(?i)(\d+)\s*lines?\s*of\s*code`, func(f *storage.Facts, v int) { f.LinesOfCode = &v })},
	{apply: matchInt(`(?i)(\d+)\s*files?\s*created`, func(f *storage.Facts, v int) { f.FilesCreated = &v })},
	{apply: matchInt(`(?i)(\d+)\s*files?\s*modified`, func(f *storage.Facts, v int) { f.FilesModified = &v })},
	{apply: matchString(`(?i)benchmark\s*[:=]?\s*["']?([A-Za-z][\w\s-]{2,40}?)["']?(?:[.,\n]|$)`, func(f *storage.Facts, v string) { f.BenchmarkName = strings.TrimSpace(v) })},
	{apply: matchFloat(`(?i)benchmark\s*score\s*[:=]?\s*(\d+(?:\.\d+)?)`, func(f *storage.Facts, v float64) { f.BenchmarkScore = &v })},
	{apply: matchFloat(`(?i)baseline\s*[:=]?\s*(\d+(?:\.\d+)?)`, func(f *storage.Facts, v float64) { f.BaselineScore = &v })},
	{apply: matchInt(`(?i)(\d+)\s*bugs?\b`, func(f *storage.Facts, v int) { f.BugCount = &v })},
	{apply: matchInt(`(?i)(\d+)\s*errors?\b`, func(f *storage.Facts, v int) { f.ErrorCount = &v })},
	{apply: matchFloat(`(?i)(\d+(?:\.\d+)?)\s*hours?\b`, func(f *storage.Facts, v float64) { f.DurationHours = &v })},
	{apply: matchString(`(?i)commit\s*[:=]?\s*([0-9a-f]{7,40})`, func(f *storage.Facts, v string) { f.CommitHash = v })},
	{apply: matchInt(`(?i)(?:pr|pull request)\s*[:#]?\s*(\d+)`, func(f *storage.Facts, v int) { f.PullRequestNum = &v })},
}

func matchString(pattern string, set func(*storage.Facts, string)) func(*storage.Facts, string) bool {
	re := regexp.MustCompile(pattern)
	return func(f *storage.Facts, content string) bool {
		m := re.FindStringSubmatch(content)
		if m == nil {
			return false
		}
		set(f, m[1])
		return true
	}
}

func matchFloat(pattern string, set func(*storage.Facts, float64)) func(*storage.Facts, string) bool {
	re := regexp.MustCompile(pattern)
	return func(f *storage.Facts, content string) bool {
		m := re.FindStringSubmatch(content)
		if m == nil {
			return false
		}
		v, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return false
		}
		set(f, v)
		return true
	}
}

func matchInt(pattern string, set func(*storage.Facts, int)) func(*storage.Facts, string) bool {
	re := regexp.MustCompile(pattern)
	return func(f *storage.Facts, content string) bool {
		m := re.FindStringSubmatch(content)
		if m == nil {
			return false
		}
		raw := firstNonEmpty(m[1:])
		if raw == "" {
			return false
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return false
		}
		set(f, v)
		return true
	}
}

// firstNonEmpty returns the first non-empty capture group, for patterns
// with more than one alternative capturing group (e.g. "N episodes" vs
// "episodes: N").
func firstNonEmpty(groups []string) string {
	for _, g := range groups {
		if g != "" {
			return g
		}
	}
	return ""
}

var statusVocabulary = map[string]string{
	"complete":     storage.StatusComplete,
	"completed":    storage.StatusComplete,
	"done":         storage.StatusComplete,
	"in progress":  storage.StatusInProgress,
	"in_progress":  storage.StatusInProgress,
	"ongoing":      storage.StatusInProgress,
	"pending":      storage.StatusPending,
	"not started":  storage.StatusPending,
	"failed":       storage.StatusFailed,
	"failure":      storage.StatusFailed,
	"error":        storage.StatusFailed,
}

func matchStatus() func(*storage.Facts, string) bool {
	re := regexp.MustCompile(`(?i)status\s*[:=]?\s*["']?(complete(?:d)?|done|in[\s_]progress|ongoing|pending|not started|failed|failure|error)["']?`)
	return func(f *storage.Facts, content string) bool {
		m := re.FindStringSubmatch(content)
		if m == nil {
			return false
		}
		normalized, ok := statusVocabulary[strings.ToLower(strings.TrimSpace(m[1]))]
		if !ok {
			return false
		}
		f.Status = normalized
		return true
	}
}

// structuralMarker patterns that raise extraction confidence: markdown
// headings and explicit key-value punctuation.
var structuralMarkerPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?m)^#{1,6}\s+\S`),
	regexp.MustCompile(`[A-Za-z_][\w ]{1,30}:\s*\S`),
	regexp.MustCompile(`[A-Za-z_][\w ]{1,30}=\s*\S`),
}

// confidenceMatchCap bounds how many matched fields it takes to reach full
// marks on the match term of the confidence formula. A handful of populated
// fields (a typical status-report snippet) is already strong signal — scaling
// against the full factPatterns catalogue would keep confidence low for
// realistic content that only ever touches a few of the ~25 known fields.
const confidenceMatchCap = 5

// ExtractFacts runs the ordered regex pipeline over content and returns a
// populated Facts record plus whether anything was extracted. Confidence is
// derived from the count of matched fields (capped at confidenceMatchCap)
// and the presence of structural markers (headings, key-value punctuation)
// in the source content.
func ExtractFacts(content string) (*storage.Facts, bool) {
	facts := &storage.Facts{}
	matched := 0
	for _, p := range factPatterns {
		if p.apply(facts, content) {
			matched++
		}
	}
	if matched == 0 {
		return nil, false
	}

	markers := 0
	for _, re := range structuralMarkerPatterns {
		if re.MatchString(content) {
			markers++
		}
	}

	confidence := minFloat(float64(matched), confidenceMatchCap) / confidenceMatchCap * 0.7
	confidence += float64(markers) / float64(len(structuralMarkerPatterns)) * 0.3
	if confidence > 1 {
		confidence = 1
	}

	facts.ExtractionMethod = "regex"
	facts.ExtractionConfidence = confidence
	facts.LastUpdated = time.Now()
	return facts, true
}

// FactFieldValue resolves a Facts field by its JSON key name (the fact_type
// used in D5/D6 queries). Returns ok=false if facts is nil or the field was
// never populated.
func FactFieldValue(facts *storage.Facts, fieldKey string) (any, bool) {
	if facts == nil {
		return nil, false
	}
	switch fieldKey {
	case "nexus_version":
		return nonEmptyString(facts.NexusVersion)
	case "api_version":
		return nonEmptyString(facts.APIVersion)
	case "accuracy_percent":
		return derefFloat(facts.AccuracyPercent)
	case "latency_ms":
		return derefFloat(facts.LatencyMS)
	case "episode_count":
		return derefInt(facts.EpisodeCount)
	case "query_count":
		return derefInt(facts.QueryCount)
	case "test_count":
		return derefInt(facts.TestCount)
	case "success_rate":
		return derefFloat(facts.SuccessRate)
	case "status":
		return nonEmptyString(facts.Status)
	case "phase_number":
		return derefInt(facts.PhaseNumber)
	case "session_number":
		return derefInt(facts.SessionNumber)
	case "completion_percent":
		return derefFloat(facts.CompletionPct)
	case "feature_name":
		return nonEmptyString(facts.FeatureName)
	case "benchmark_name":
		return nonEmptyString(facts.BenchmarkName)
	case "benchmark_score":
		return derefFloat(facts.BenchmarkScore)
	case "bug_count":
		return derefInt(facts.BugCount)
	case "error_count":
		return derefInt(facts.ErrorCount)
	case "commit_hash":
		return nonEmptyString(facts.CommitHash)
	case "pull_request_number":
		return derefInt(facts.PullRequestNum)
	default:
		return nil, false
	}
}

func nonEmptyString(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	return s, true
}

func derefFloat(v *float64) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

func derefInt(v *int) (any, bool) {
	if v == nil {
		return nil, false
	}
	return *v, true
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
