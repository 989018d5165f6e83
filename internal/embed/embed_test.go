package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"
)

func TestEmbedBatch(t *testing.T) {
	var gotPath string
	var gotInputs []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		var req embedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		gotInputs = req.Inputs
		vecs := make([][]float32, len(req.Inputs))
		for i := range vecs {
			vecs[i] = []float32{float32(i) + 0.1, 0.2, 0.3}
		}
		json.NewEncoder(w).Encode(vecs)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	got, err := client.EmbedBatch(context.Background(), []string{"hello", "world"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if gotPath != "/embed" {
		t.Fatalf("expected POST /embed, got %s", gotPath)
	}
	if !reflect.DeepEqual(gotInputs, []string{"hello", "world"}) {
		t.Fatalf("unexpected inputs: %v", gotInputs)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(got))
	}
	if client.Dimensions() != 3 {
		t.Fatalf("expected dimensions 3, got %d", client.Dimensions())
	}
}

func TestEmbedSingleVectorResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Some deployments return a bare vector for a single input.
		json.NewEncoder(w).Encode([]float32{0.5, 0.5})
	}))
	defer server.Close()

	client, err := NewClient(server.URL+"/", time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	vec, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if !reflect.DeepEqual(vec, []float32{0.5, 0.5}) {
		t.Fatalf("unexpected vector: %v", vec)
	}
}

func TestEmbedHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, err := NewClient(server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	_, err = client.Embed(context.Background(), "hello")
	httpErr, ok := err.(*HTTPError)
	if !ok {
		t.Fatalf("expected *HTTPError, got %T: %v", err, err)
	}
	if httpErr.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: %d", httpErr.StatusCode)
	}
}

func TestEmbedBatchCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode([][]float32{{0.1}})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	if _, err := client.EmbedBatch(context.Background(), []string{"a", "b"}); err == nil {
		t.Fatal("expected error on embedding count mismatch")
	}
}

func TestNewClientRequiresEndpoint(t *testing.T) {
	if _, err := NewClient("  ", time.Second); err == nil {
		t.Fatal("expected error for empty endpoint")
	}
}

func TestIsZero(t *testing.T) {
	tests := []struct {
		name string
		vec  []float32
		want bool
	}{
		{"nil", nil, true},
		{"empty", []float32{}, true},
		{"all zeros", []float32{0, 0, 0}, true},
		{"non-zero", []float32{0, 0.1, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsZero(tt.vec); got != tt.want {
				t.Fatalf("IsZero(%v) = %v, want %v", tt.vec, got, tt.want)
			}
		})
	}
}
