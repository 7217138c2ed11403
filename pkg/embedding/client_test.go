package embedding_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexuslabs/nexusmem/pkg/config"
	"github.com/nexuslabs/nexusmem/pkg/embedding"
)

func TestClient_Encode_ReturnsVectorAndVersion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embedding":     []float32{0.1, 0.2, 0.3},
			"model_version": "test-model-v1",
		})
	}))
	defer server.Close()

	c := embedding.New(&config.EmbeddingConfig{
		Endpoint: server.URL,
		APIKey:   "test-key",
		Model:    "test-model",
		Timeout:  5 * time.Second,
	})

	vec, version, err := c.Encode(t.Context(), "hello world")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
	assert.Equal(t, "test-model-v1", version)
}

func TestClient_Encode_NonOKStatusIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("provider unavailable"))
	}))
	defer server.Close()

	c := embedding.New(&config.EmbeddingConfig{Endpoint: server.URL, Model: "test-model", Timeout: 5 * time.Second})

	_, _, err := c.Encode(t.Context(), "hello")
	assert.Error(t, err)
}
