// Package search provides hybrid retrieval over the WhatsApp message archive.
//
// Three independent strategies run against the same corpus:
// - structured: filter-only browsing, newest first
// - fulltext: tsvector keyword ranking in PostgreSQL
// - vector: cosine similarity over pgvector embeddings
//
// Each strategy produces (message, score-in-[0,1]) pairs; the engine merges
// them with method-aware weights into one ranked list. Count and aggregate
// modes reuse the same filter predicate over the same corpus.
package search

import (
	"context"

	"wavault/internal/store"
)

// Result-count bounds shared by search and aggregate modes.
const (
	DefaultLimit = 10
	MaxLimit     = 100
)

// Identity of this archive in result records.
const (
	SourceName  = "whatsapp"
	SourceClass = "personal"
)

// Clause is one declarative filter, {field, value}. Unrecognized fields are
// ignored so a future superset of filters does not break this engine.
type Clause struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// Result is one client-facing search hit.
type Result struct {
	ID            string             `json:"id"`
	Source        string             `json:"source"`
	SourceClass   string             `json:"source_class"`
	Title         string             `json:"title"`
	Snippet       string             `json:"snippet"`
	Timestamp     *string            `json:"timestamp"`
	Scores        map[string]float64 `json:"scores"`
	CombinedScore float64            `json:"combined_score"`
	MethodsUsed   []string           `json:"methods_used"`
	Metadata      map[string]any     `json:"metadata"`
	Provenance    string             `json:"provenance"`
}

// Aggregate is one group in aggregate mode.
type Aggregate struct {
	GroupValue string         `json:"group_value"`
	Count      int64          `json:"count"`
	Label      string         `json:"label"`
	Metadata   map[string]any `json:"metadata"`
}

// Response is the unified_search result envelope.
type Response struct {
	Success         bool               `json:"success"`
	Results         []Result           `json:"results"`
	TotalAvailable  int64              `json:"total_available"`
	Count           *int64             `json:"count,omitempty"`
	Mode            string             `json:"mode,omitempty"`
	Aggregates      []Aggregate        `json:"aggregates,omitempty"`
	MethodsExecuted []string           `json:"methods_executed"`
	TimingMS        map[string]float64 `json:"timing_ms"`
	Error           string             `json:"error,omitempty"`
}

// Store is the slice of the storage layer the engine consumes.
type Store interface {
	StructuredSearch(ctx context.Context, f store.MessageFilter, limit int) ([]store.MessageHit, error)
	FullTextSearch(ctx context.Context, query string, f store.MessageFilter, limit int) ([]store.MessageHit, error)
	VectorSearch(ctx context.Context, vec []float32, f store.MessageFilter, limit int) ([]store.MessageHit, error)
	CountMessages(ctx context.Context, f store.MessageFilter) (int64, error)
	CountByChat(ctx context.Context, f store.MessageFilter, topN int) ([]store.ChatCount, error)
	CountByCounterparty(ctx context.Context, f store.MessageFilter, topN int) ([]store.JIDCount, error)
	ResolveContact(ctx context.Context, jid string) (*store.ContactRef, error)
}

// CapLimit clamps a requested result count into [1, MaxLimit].
func CapLimit(n int) int {
	if n < 1 {
		return 1
	}
	if n > MaxLimit {
		return MaxLimit
	}
	return n
}
