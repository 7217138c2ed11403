package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslabs/nexusmem/pkg/api"
	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/decay"
	"github.com/nexuslabs/nexusmem/pkg/ingest"
	"github.com/nexuslabs/nexusmem/pkg/retrieval"
	"github.com/nexuslabs/nexusmem/test/testutil"
)

// fakeEncoder returns a fixed-dimension embedding so tests don't depend on
// a real embedding model.
type fakeEncoder struct{}

func (fakeEncoder) Encode(_ context.Context, content string) ([]float32, string, error) {
	vec := make([]float32, 384)
	for i := range vec {
		vec[i] = float32(len(content)%7) / 7
	}
	return vec, "fake-v1", nil
}

func newTestServer(t *testing.T) *api.Server {
	t.Helper()
	pool := testutil.NewTestPool(t)
	retrievalSvc := retrieval.NewService(pool, fakeEncoder{}, nil)
	ingestSvc := ingest.NewService(pool, nil)
	decaySvc := decay.NewService(pool, &config.DecayConfig{HalfLifeDays: 30, PruningThreshold: 0.2, PruningMinAgeDays: 7})
	return api.NewServer(pool, retrievalSvc, ingestSvc, decaySvc, nil, nil, &config.ServerConfig{HTTPPort: "0", GinMode: "test"})
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleIdentity(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleHealth_ReportsHealthyWithLiveDatabase(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestHandleAction_CreatesEpisodeAndReturnsIDs(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/memory/action", map[string]any{
		"action_type":    "file_edit",
		"action_details": map[string]any{"path": "main.go"},
		"tags":           []string{"coding"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["episode_id"])
	assert.NotEmpty(t, body["job_id"])
}

func TestHandleAction_MissingActionTypeIsValidationError(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/memory/action", map[string]any{
		"tags": []string{"coding"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleRecent_ReturnsIngestedEpisode(t *testing.T) {
	s := newTestServer(t)
	doJSON(t, s.Router(), http.MethodPost, "/memory/action", map[string]any{
		"action_type":    "note",
		"action_details": map[string]any{"text": "remember this"},
	})

	rec := doJSON(t, s.Router(), http.MethodGet, "/memory/episodic/recent?limit=5", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.NotEmpty(t, body["episodes"])
}

func TestHandleLink_UnknownRelationshipIs400(t *testing.T) {
	s := newTestServer(t)
	a := doJSON(t, s.Router(), http.MethodPost, "/memory/action", map[string]any{"action_type": "a"})
	b := doJSON(t, s.Router(), http.MethodPost, "/memory/action", map[string]any{"action_type": "b"})

	var aBody, bBody map[string]string
	require.NoError(t, json.Unmarshal(a.Body.Bytes(), &aBody))
	require.NoError(t, json.Unmarshal(b.Body.Bytes(), &bBody))

	rec := doJSON(t, s.Router(), http.MethodPost, "/memory/temporal/link", map[string]any{
		"source_id":    aBody["episode_id"],
		"target_id":    bBody["episode_id"],
		"relationship": "nonsense",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleFacts_NoMatchIs404(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/memory/facts", map[string]any{
		"fact_type": "nonexistent_fact_key",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlePruningExecute_DryRunFalseIs501(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/memory/pruning/execute", map[string]any{
		"dry_run": false,
	})
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestHandleConsciousnessUpdate_UnknownTypeIs422(t *testing.T) {
	s := newTestServer(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/memory/consciousness/update", map[string]any{
		"type": "spiritual",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestHandleConsciousnessUpdate_LinksToPreviousSample(t *testing.T) {
	s := newTestServer(t)
	first := doJSON(t, s.Router(), http.MethodPost, "/memory/consciousness/update", map[string]any{
		"type":  "emotional",
		"state": map[string]any{"joy": 0.5},
	})
	require.Equal(t, http.StatusCreated, first.Code)

	var firstBody map[string]string
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstBody))

	second := doJSON(t, s.Router(), http.MethodPost, "/memory/consciousness/update", map[string]any{
		"type":  "emotional",
		"state": map[string]any{"joy": 0.8},
	})
	require.Equal(t, http.StatusCreated, second.Code)

	var secondBody map[string]string
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondBody))

	rec := doJSON(t, s.Router(), http.MethodPost, "/memory/temporal/related", map[string]any{
		"episode_id":   firstBody["episode_id"],
		"relationship": "after",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var related map[string][]map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &related))
	require.Len(t, related["episodes"], 1)
	assert.Equal(t, secondBody["episode_id"], related["episodes"][0]["ID"])
}
