package decay

import (
	"testing"
	"time"

	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/storage"
	"github.com/stretchr/testify/assert"
)

func testService() *Service {
	return NewService(nil, &config.DecayConfig{HalfLifeDays: 30, PruningThreshold: 0.15, PruningMinAgeDays: 90})
}

func TestScore_ImportanceInvariant(t *testing.T) {
	s := testService()
	cases := []float64{0, 0.25, 0.5, 0.75, 1.0}
	for _, importance := range cases {
		score := s.Score(importance, time.Now(), nil)
		assert.GreaterOrEqual(t, score, 0.0)
		assert.LessOrEqual(t, score, 1.0)
	}
}

func TestScore_MonotonicInAge(t *testing.T) {
	s := testService()
	now := time.Now()

	recent := s.Score(0.6, now.Add(-1*24*time.Hour), nil)
	old := s.Score(0.6, now.Add(-60*24*time.Hour), nil)
	ancient := s.Score(0.6, now.Add(-365*24*time.Hour), nil)

	assert.Greater(t, recent, old)
	assert.Greater(t, old, ancient)
}

func TestScore_AccessNeverDecreasesScore(t *testing.T) {
	s := testService()
	now := time.Now()
	createdAt := now.Add(-30 * 24 * time.Hour)

	noAccess := s.Score(0.5, createdAt, nil)
	withAccess := s.Score(0.5, createdAt, &storage.AccessTracking{AccessCount: 10, LastAccessed: &now})

	assert.GreaterOrEqual(t, withAccess, noAccess)
}

func TestIsProtected_ProtectedTag(t *testing.T) {
	e := storage.Episode{Tags: []string{"milestone"}, ImportanceScore: 0.1, CreatedAt: time.Now().Add(-365 * 24 * time.Hour)}
	assert.True(t, isProtected(e, 365, 7))
}

func TestIsProtected_HighImportance(t *testing.T) {
	e := storage.Episode{ImportanceScore: 0.9, CreatedAt: time.Now().Add(-365 * 24 * time.Hour)}
	assert.True(t, isProtected(e, 365, 7))
}

func TestIsProtected_RecentlyAccessed(t *testing.T) {
	now := time.Now()
	e := storage.Episode{
		ImportanceScore: 0.1,
		CreatedAt:       now.Add(-365 * 24 * time.Hour),
		Metadata:        storage.EpisodeMetadata{AccessTracking: &storage.AccessTracking{LastAccessed: &now}},
	}
	assert.True(t, isProtected(e, 365, 7))
}

func TestIsProtected_Eligible(t *testing.T) {
	e := storage.Episode{ImportanceScore: 0.1, CreatedAt: time.Now().Add(-365 * 24 * time.Hour)}
	assert.False(t, isProtected(e, 365, 7))
}

func TestExecutePruning_LiveDeleteNotImplemented(t *testing.T) {
	// ExecutePruning dry_run=false must always fail, regardless of store
	// state — exercised without a real pool since the guard short-circuits
	// before any query.
	s := testService()
	_, err := s.ExecutePruning(nil, 0.15, 90, 10, false)
	assert.ErrorIs(t, err, ErrNotImplemented)
}
