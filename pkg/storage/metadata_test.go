package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpisodeMetadata_RoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	original := EpisodeMetadata{
		Facts: &Facts{
			NexusVersion:         "2.0.0",
			Status:               StatusComplete,
			ExtractionConfidence: 0.8,
			LastUpdated:          now,
		},
		AccessTracking: &AccessTracking{AccessCount: 3, LastAccessed: &now},
		Extra:          map[string]any{"custom_field": "custom_value"},
	}

	data, err := json.Marshal(original)
	require.NoError(t, err)

	var decoded EpisodeMetadata
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, original.Facts.NexusVersion, decoded.Facts.NexusVersion)
	assert.Equal(t, original.AccessTracking.AccessCount, decoded.AccessTracking.AccessCount)
	assert.Equal(t, "custom_value", decoded.Extra["custom_field"])
}

func TestEpisodeMetadata_EmptyExtraOmitted(t *testing.T) {
	data, err := json.Marshal(EpisodeMetadata{})
	require.NoError(t, err)

	var decoded EpisodeMetadata
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Empty(t, decoded.Extra)
}
