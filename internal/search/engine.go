package search

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"wavault/internal/embed"
	"wavault/internal/store"
)

// Engine runs the retrieval strategies and fuses their results.
type Engine struct {
	store    Store
	embedder embed.Embedder
}

// NewEngine creates an engine without vector search (degraded mode).
func NewEngine(st Store) *Engine {
	return &Engine{store: st}
}

// NewEngineWithEmbedder creates an engine with vector search enabled.
func NewEngineWithEmbedder(st Store, embedder embed.Embedder) *Engine {
	return &Engine{store: st, embedder: embedder}
}

// Search runs the selected strategies, fuses their scores, and projects the
// topK fused candidates into client-facing results.
func (e *Engine) Search(ctx context.Context, query string, methods []string, clauses []Clause, topK int) (*Response, error) {
	topK = CapLimit(topK)

	filter, err := ParseClauses(clauses)
	if err != nil {
		return nil, err
	}

	if len(methods) == 0 {
		methods = e.selectMethods(query, clauses)
	}

	fused := newFusionMap()
	timing := map[string]float64{}
	var executed []string

	for _, method := range dedupe(methods) {
		start := time.Now()
		results, ran, err := e.runStrategy(ctx, method, query, filter, topK)
		if err != nil {
			return nil, err
		}
		if !ran {
			continue
		}
		timing[method] = float64(time.Since(start).Microseconds()) / 1000.0
		executed = append(executed, method)
		fused.add(method, results)
	}

	ranked := fused.ranked()
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	results := make([]Result, 0, len(ranked))
	for _, c := range ranked {
		results = append(results, e.formatResult(ctx, c))
	}

	if executed == nil {
		executed = []string{}
	}
	return &Response{
		Success:         true,
		Results:         results,
		TotalAvailable:  int64(len(results)),
		MethodsExecuted: executed,
		TimingMS:        timing,
	}, nil
}

// selectMethods picks strategies when the caller named none: structured
// whenever filters are present, fulltext and vector whenever there is query
// text (vector additionally needs a configured embedder), and structured
// alone when no criteria apply at all.
func (e *Engine) selectMethods(query string, clauses []Clause) []string {
	var methods []string
	if len(clauses) > 0 {
		methods = append(methods, "structured")
	}
	if strings.TrimSpace(query) != "" {
		methods = append(methods, "fulltext")
		if e.embedder != nil {
			methods = append(methods, "vector")
		}
	}
	if len(methods) == 0 {
		methods = []string{"structured"}
	}
	return methods
}

// runStrategy executes one strategy. ran is false when the strategy was
// skipped (unknown name, or vector degradation), which keeps it out of
// methods_executed without failing the search.
func (e *Engine) runStrategy(ctx context.Context, method, query string, f store.MessageFilter, limit int) (results []scored, ran bool, err error) {
	switch method {
	case "structured":
		hits, err := e.store.StructuredSearch(ctx, f, limit)
		if err != nil {
			return nil, false, err
		}
		return scoreStructured(hits), true, nil

	case "fulltext":
		if strings.TrimSpace(query) == "" {
			return nil, false, nil
		}
		hits, err := e.store.FullTextSearch(ctx, query, f, limit)
		if err != nil {
			return nil, false, err
		}
		return scoreFullText(hits), true, nil

	case "vector":
		if e.embedder == nil || strings.TrimSpace(query) == "" {
			return nil, false, nil
		}
		vec, err := e.embedder.Embed(ctx, query)
		if err != nil {
			// Embedding failures degrade the strategy, never the search.
			slog.Warn("vector strategy skipped: embedding failed", "error", err)
			return nil, false, nil
		}
		if embed.IsZero(vec) {
			slog.Warn("vector strategy skipped: degenerate query vector")
			return nil, false, nil
		}
		hits, err := e.store.VectorSearch(ctx, vec, f, limit)
		if err != nil {
			return nil, false, err
		}
		return scoreVector(hits), true, nil

	default:
		slog.Debug("ignoring unknown search method", "method", method)
		return nil, false, nil
	}
}

// scoreStructured assigns browse-style synthetic scores: recency rank
// starting at 1.0 and dropping 0.03 per position, floored at 0.3.
func scoreStructured(hits []store.MessageHit) []scored {
	out := make([]scored, len(hits))
	for i, h := range hits {
		score := 1.0 - float64(i)*0.03
		if score < 0.3 {
			score = 0.3
		}
		out[i] = scored{hit: h, score: score}
	}
	return out
}

// scoreFullText clamps ts_rank_cd output into [0.1, 1.0].
func scoreFullText(hits []store.MessageHit) []scored {
	out := make([]scored, len(hits))
	for i, h := range hits {
		score := h.Rank
		if score < 0.1 {
			score = 0.1
		}
		if score > 1.0 {
			score = 1.0
		}
		out[i] = scored{hit: h, score: score}
	}
	return out
}

// scoreVector converts cosine distance to similarity, clamped into [0, 1].
func scoreVector(hits []store.MessageHit) []scored {
	out := make([]scored, len(hits))
	for i, h := range hits {
		score := 1.0 - h.Distance
		if score < 0 {
			score = 0
		}
		if score > 1 {
			score = 1
		}
		out[i] = scored{hit: h, score: score}
	}
	return out
}

func dedupe(methods []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range methods {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}
