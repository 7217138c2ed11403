package retrieval

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslabs/nexusmem/pkg/storage"
)

func TestExtractFacts_NoMatchReturnsFalse(t *testing.T) {
	facts, ok := ExtractFacts("just a normal sentence with nothing notable")
	assert.False(t, ok)
	assert.Nil(t, facts)
}

func TestExtractFacts_ParsesMultipleFields(t *testing.T) {
	content := "## Status Update\nnexus version: v2.3.1\naccuracy: 94.5%\nstatus: completed\n42 episodes processed"
	facts, ok := ExtractFacts(content)
	require.True(t, ok)
	assert.Equal(t, "2.3.1", facts.NexusVersion)
	require.NotNil(t, facts.AccuracyPercent)
	assert.InDelta(t, 94.5, *facts.AccuracyPercent, 0.001)
	assert.Equal(t, storage.StatusComplete, facts.Status)
	require.NotNil(t, facts.EpisodeCount)
	assert.Equal(t, 42, *facts.EpisodeCount)
	assert.Equal(t, "regex", facts.ExtractionMethod)
	assert.False(t, facts.LastUpdated.IsZero())
}

func TestExtractFacts_S2CanonicalStatusReportMeetsConfidenceThreshold(t *testing.T) {
	content := "NEXUS V2.0.0\nStatus: COMPLETE\nAccuracy: 100.0%\nEpisodes: 553\nPhase: 4"
	facts, ok := ExtractFacts(content)
	require.True(t, ok)
	assert.Equal(t, "2.0.0", facts.NexusVersion)
	assert.Equal(t, storage.StatusComplete, facts.Status)
	require.NotNil(t, facts.EpisodeCount)
	assert.Equal(t, 553, *facts.EpisodeCount)
	assert.Greater(t, facts.ExtractionConfidence, 0.5)
}

func TestExtractFacts_ConfidenceRisesWithStructuralMarkers(t *testing.T) {
	plain, _ := ExtractFacts("status: completed")
	structured, _ := ExtractFacts("## Status\nstatus: completed\n")
	require.NotNil(t, plain)
	require.NotNil(t, structured)
	assert.Greater(t, structured.ExtractionConfidence, plain.ExtractionConfidence)
}

func TestExtractFacts_StatusVocabularyNormalization(t *testing.T) {
	cases := map[string]string{
		"status: done":        storage.StatusComplete,
		"status: in progress": storage.StatusInProgress,
		"status: failed":      storage.StatusFailed,
		"status: pending":     storage.StatusPending,
	}
	for input, want := range cases {
		facts, ok := ExtractFacts(input)
		require.Truef(t, ok, "input %q", input)
		assert.Equalf(t, want, facts.Status, "input %q", input)
	}
}

func TestFactFieldValue_NilFactsIsMiss(t *testing.T) {
	_, ok := FactFieldValue(nil, "status")
	assert.False(t, ok)
}

func TestFactFieldValue_UnpopulatedFieldIsMiss(t *testing.T) {
	facts, ok := ExtractFacts("status: completed")
	require.True(t, ok)
	_, ok = FactFieldValue(facts, "nexus_version")
	assert.False(t, ok)
}

func TestFactFieldValue_UnknownKeyIsMiss(t *testing.T) {
	facts, _ := ExtractFacts("status: completed")
	_, ok := FactFieldValue(facts, "not_a_real_field")
	assert.False(t, ok)
}

func TestClassifyFactType_MatchesKeyword(t *testing.T) {
	assert.Equal(t, "nexus_version", ClassifyFactType("what version of nexus is running?"))
	assert.Equal(t, "accuracy_percent", ClassifyFactType("What's the current accuracy?"))
	assert.Equal(t, "", ClassifyFactType("tell me a story"))
}
