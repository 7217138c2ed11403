package consolidation

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() *config.ConsolidationConfig {
	return &config.ConsolidationConfig{
		BreakthroughPercentile: 80.0,
		TraceLookback:          12 * time.Hour,
		SimilarityThreshold:    0.65,
		SharedTagThreshold:     2,
		TemporalProximity:      1 * time.Hour,
		BoostWeight:            0.25,
		BoostCap:               0.20,
		TemporalDecayHours:     6.0,
		ReplaySampleRatio:      0.3,
		ReplayMinAgeDays:       7,
		ReplayMaxAgeDays:       90,
		ReplaySalienceMin:      0.70,
	}
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	assert.InDelta(t, 9.1, percentile(values, 90), 0.01)
	assert.InDelta(t, 1.0, percentile(values, 0), 0.01)
	assert.InDelta(t, 10.0, percentile(values, 100), 0.01)
}

func TestCosineSimilarity_IdenticalVectorsIsOne(t *testing.T) {
	v := []float32{1, 2, 3}
	assert.InDelta(t, 1.0, cosineSimilarity(v, v), 1e-9)
}

func TestCosineSimilarity_OrthogonalIsZero(t *testing.T) {
	assert.InDelta(t, 0.0, cosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarity_EmptyOrMismatchedIsZero(t *testing.T) {
	assert.Equal(t, 0.0, cosineSimilarity(nil, []float32{1}))
	assert.Equal(t, 0.0, cosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestSharedTagCount(t *testing.T) {
	assert.Equal(t, 2, sharedTagCount([]string{"a", "b", "c"}, []string{"b", "c", "d"}))
	assert.Equal(t, 0, sharedTagCount(nil, []string{"a"}))
}

func episodeAt(t time.Time, salience, importance float64, tags ...string) *scoredEpisode {
	return &scoredEpisode{Episode: storage.Episode{
		ID:              uuid.New(),
		CreatedAt:       t,
		ImportanceScore: importance,
		Tags:            tags,
		Metadata: storage.EpisodeMetadata{
			SalienceScore: &salience,
		},
	}}
}

func TestIdentifyBreakthroughs_SelectsTopPercentile(t *testing.T) {
	e := NewEngine(nil, testConfig())
	now := time.Now()

	var episodes []*scoredEpisode
	for i := 0; i < 10; i++ {
		salience := 0.1
		if i == 9 {
			salience = 0.95
		}
		episodes = append(episodes, episodeAt(now.Add(time.Duration(i)*time.Minute), salience, 0.5))
	}

	breakthroughs := e.identifyBreakthroughs(episodes)
	require.NotEmpty(t, breakthroughs)
	assert.Equal(t, episodes[9].ID, breakthroughs[0].ID)
}

func TestTraceBreakthroughChains_DropsSingletonChains(t *testing.T) {
	e := NewEngine(nil, testConfig())
	now := time.Now()

	isolated := episodeAt(now, 0.95, 0.5)
	chains := e.traceBreakthroughChains([]*scoredEpisode{isolated}, []*scoredEpisode{isolated})
	assert.Empty(t, chains)
}

func TestTraceBreakthroughChains_SharedTagsFormsChain(t *testing.T) {
	e := NewEngine(nil, testConfig())
	now := time.Now()

	precursor := episodeAt(now.Add(-2*time.Hour), 0.3, 0.4, "alpha", "beta")
	breakthrough := episodeAt(now, 0.95, 0.5, "alpha", "beta")
	all := []*scoredEpisode{precursor, breakthrough}

	chains := e.traceBreakthroughChains([]*scoredEpisode{breakthrough}, all)
	require.Len(t, chains, 1)
	require.Len(t, chains[0], 2)
	assert.Equal(t, precursor.ID, chains[0][0].ID)
	assert.Equal(t, breakthrough.ID, chains[0][1].ID)
}

func TestConsolidateChain_BoostIsMultiplicativeAndCapped(t *testing.T) {
	e := NewEngine(nil, testConfig())
	now := time.Now()

	precursor := episodeAt(now.Add(-1*time.Hour), 0.3, 0.4)
	breakthrough := episodeAt(now, 0.95, 0.5)
	breakthrough.BreakthroughScore = 0.9
	chain := []*scoredEpisode{precursor, breakthrough}

	originalImportance := precursor.ImportanceScore
	boosts := e.consolidateChain(chain)

	require.Len(t, boosts, 2)
	for _, b := range boosts {
		assert.LessOrEqual(t, b, e.cfg.BoostCap+1e-9)
	}
	assert.Greater(t, precursor.ImportanceScore, originalImportance)
	require.NotNil(t, precursor.ConsolidatedSalience)
	assert.LessOrEqual(t, *precursor.ConsolidatedSalience, 1.0)
}

func TestConsolidateChain_NoOpBelowTwoEpisodes(t *testing.T) {
	e := NewEngine(nil, testConfig())
	only := episodeAt(time.Now(), 0.9, 0.5)
	assert.Nil(t, e.consolidateChain([]*scoredEpisode{only}))
}

func TestCreateTraces_TypeAssignment(t *testing.T) {
	e := NewEngine(nil, testConfig())
	now := time.Now()

	chain := []*scoredEpisode{
		episodeAt(now.Add(-2*time.Hour), 0.3, 0.4),
		episodeAt(now.Add(-1*time.Hour), 0.4, 0.4),
		episodeAt(now, 0.95, 0.5),
	}

	traces := e.createTraces([][]*scoredEpisode{chain})
	require.Len(t, traces, 2)
	assert.Equal(t, storage.TraceTypeInitiator, traces[0].TraceType)
	assert.Equal(t, storage.TraceTypeConclusion, traces[1].TraceType)
	assert.Equal(t, traces[0].NarrativeID, traces[1].NarrativeID)
}

func TestCreateTraces_TwoEpisodeChainIsInitiatorNotConclusion(t *testing.T) {
	// Mirrors the Python engine's if/elif ordering: when a chain has exactly
	// two episodes, i==0 is also len(chain)-2, but the initiator branch wins.
	e := NewEngine(nil, testConfig())
	now := time.Now()

	chain := []*scoredEpisode{
		episodeAt(now.Add(-1*time.Hour), 0.3, 0.4),
		episodeAt(now, 0.95, 0.5),
	}

	traces := e.createTraces([][]*scoredEpisode{chain})
	require.Len(t, traces, 1)
	assert.Equal(t, storage.TraceTypeInitiator, traces[0].TraceType)
}
