// Package embed provides text-to-vector embedding via the archive's
// external inference service.
//
// The service exposes a single endpoint, POST {endpoint}/embed, that takes
// {"inputs": [text, ...]} and returns one vector per input. Embedding
// inference is the slowest call this system makes, so the client defaults
// to a generous timeout.
package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds a single embedding request.
const DefaultTimeout = 60 * time.Second

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// embedRequest is the wire request for the /embed endpoint.
type embedRequest struct {
	Inputs []string `json:"inputs"`
}

// HTTPError represents a non-2xx response from the embedding service.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("embedding service HTTP %d: %s", e.StatusCode, e.Message)
}

// Client implements Embedder against the HTTP embedding service.
type Client struct {
	endpoint   string
	dimensions int
	http       *http.Client
}

// NewClient creates an embedding client for the given service base URL.
// timeout <= 0 selects DefaultTimeout.
func NewClient(endpoint string, timeout time.Duration) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}, nil
}

// Embed generates an embedding vector for a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(embeddings))
	}
	return embeddings[0], nil
}

// EmbedBatch generates embedding vectors for multiple texts in one call.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	requestBody, err := json.Marshal(embedRequest{Inputs: texts})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/embed", bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling embedding service: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	embeddings, err := parseVectors(body)
	if err != nil {
		return nil, err
	}
	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}

	for _, emb := range embeddings {
		if len(emb) > 0 {
			c.dimensions = len(emb)
			break
		}
	}
	return embeddings, nil
}

// Dimensions returns the dimensionality of vectors from this client.
// Returns 0 until the first successful call.
func (c *Client) Dimensions() int {
	return c.dimensions
}

// parseVectors accepts both response shapes the service produces: a list of
// vectors, or a single bare vector when the request had a single input.
func parseVectors(body []byte) ([][]float32, error) {
	var batch [][]float32
	if err := json.Unmarshal(body, &batch); err == nil {
		return batch, nil
	}
	var single []float32
	if err := json.Unmarshal(body, &single); err == nil {
		return [][]float32{single}, nil
	}
	return nil, fmt.Errorf("unexpected embedding response: %s", truncate(string(body), 200))
}

// IsZero reports whether a vector is empty or all zeros. The service signals
// a degenerate query (or its own unavailability) this way, and callers must
// treat it as "skip the vector strategy", not as "no matches".
func IsZero(vec []float32) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
