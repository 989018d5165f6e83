package search

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"wavault/internal/store"
)

type fakeStore struct {
	structured []store.MessageHit
	fulltext   []store.MessageHit
	vector     []store.MessageHit

	structuredErr error
	fulltextErr   error
	vectorErr     error

	count      int64
	countErr   error
	chatGroups []store.ChatCount
	jidGroups  []store.JIDCount

	contacts   map[string]store.ContactRef
	resolveErr error

	resolveCalls []string
	lastFilter   store.MessageFilter
	lastLimit    int
}

func (f *fakeStore) StructuredSearch(ctx context.Context, filter store.MessageFilter, limit int) ([]store.MessageHit, error) {
	f.lastFilter, f.lastLimit = filter, limit
	return f.structured, f.structuredErr
}

func (f *fakeStore) FullTextSearch(ctx context.Context, query string, filter store.MessageFilter, limit int) ([]store.MessageHit, error) {
	f.lastFilter, f.lastLimit = filter, limit
	return f.fulltext, f.fulltextErr
}

func (f *fakeStore) VectorSearch(ctx context.Context, vec []float32, filter store.MessageFilter, limit int) ([]store.MessageHit, error) {
	f.lastFilter, f.lastLimit = filter, limit
	return f.vector, f.vectorErr
}

func (f *fakeStore) CountMessages(ctx context.Context, filter store.MessageFilter) (int64, error) {
	f.lastFilter = filter
	return f.count, f.countErr
}

func (f *fakeStore) CountByChat(ctx context.Context, filter store.MessageFilter, topN int) ([]store.ChatCount, error) {
	f.lastFilter, f.lastLimit = filter, topN
	return f.chatGroups, nil
}

func (f *fakeStore) CountByCounterparty(ctx context.Context, filter store.MessageFilter, topN int) ([]store.JIDCount, error) {
	f.lastFilter, f.lastLimit = filter, topN
	return f.jidGroups, nil
}

func (f *fakeStore) ResolveContact(ctx context.Context, jid string) (*store.ContactRef, error) {
	f.resolveCalls = append(f.resolveCalls, jid)
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if ref, ok := f.contacts[jid]; ok {
		return &ref, nil
	}
	return nil, nil
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return f.vec, f.err
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = f.vec
	}
	return out, nil
}

func (f *fakeEmbedder) Dimensions() int { return len(f.vec) }

func hitAt(id int64, ts time.Time) store.MessageHit {
	body := fmt.Sprintf("message %d", id)
	return store.MessageHit{
		Message: store.Message{
			ID:          id,
			ChatID:      1,
			WAMessageID: fmt.Sprintf("wa-%d", id),
			RemoteJID:   "60173135062@s.whatsapp.net",
			Timestamp:   &ts,
			MessageType: "text",
			BodyText:    &body,
		},
	}
}

func TestSearch_AutoSelectsStructuredForFilterOnlyQuery(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	st := &fakeStore{structured: []store.MessageHit{hitAt(1, ts), hitAt(2, ts.Add(-time.Hour))}}
	engine := NewEngine(st)

	resp, err := engine.Search(context.Background(), "", nil, []Clause{{Field: "from_me", Value: true}}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.MethodsExecuted) != 1 || resp.MethodsExecuted[0] != "structured" {
		t.Fatalf("expected methods [structured], got %v", resp.MethodsExecuted)
	}
	if st.lastFilter.FromMe == nil || !*st.lastFilter.FromMe {
		t.Fatalf("from_me filter not applied: %+v", st.lastFilter)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
	// Structured results keep recency order via rank-based scores.
	if resp.Results[0].ID != "1" || resp.Results[1].ID != "2" {
		t.Fatalf("unexpected order: %v, %v", resp.Results[0].ID, resp.Results[1].ID)
	}
}

func TestSearch_DefaultsToStructuredWithNoCriteria(t *testing.T) {
	st := &fakeStore{}
	engine := NewEngine(st)

	resp, err := engine.Search(context.Background(), "   ", nil, nil, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.MethodsExecuted) != 1 || resp.MethodsExecuted[0] != "structured" {
		t.Fatalf("expected default [structured], got %v", resp.MethodsExecuted)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("expected no results, got %d", len(resp.Results))
	}
}

func TestSearch_EmbeddingFailureSkipsVectorNotSearch(t *testing.T) {
	ts := time.Now().UTC()
	st := &fakeStore{fulltext: []store.MessageHit{hitAt(3, ts)}}
	engine := NewEngineWithEmbedder(st, &fakeEmbedder{err: errors.New("connection refused")})

	resp, err := engine.Search(context.Background(), "hello", nil, nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if !contains(resp.MethodsExecuted, "fulltext") {
		t.Fatalf("expected fulltext executed, got %v", resp.MethodsExecuted)
	}
	if contains(resp.MethodsExecuted, "vector") {
		t.Fatalf("vector must be skipped on embedding failure, got %v", resp.MethodsExecuted)
	}
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 fulltext result, got %d", len(resp.Results))
	}
}

func TestSearch_ZeroQueryVectorSkipsVector(t *testing.T) {
	st := &fakeStore{vector: []store.MessageHit{hitAt(9, time.Now())}}
	engine := NewEngineWithEmbedder(st, &fakeEmbedder{vec: []float32{0, 0, 0}})

	resp, err := engine.Search(context.Background(), "hello", []string{"vector"}, nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.MethodsExecuted) != 0 {
		t.Fatalf("expected no executed methods, got %v", resp.MethodsExecuted)
	}
	if len(resp.Results) != 0 {
		t.Fatalf("degenerate vector must yield no results, got %d", len(resp.Results))
	}
}

func TestSearch_FusesScoresAcrossStrategies(t *testing.T) {
	ts := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	shared := hitAt(1, ts)
	ftOnly := hitAt(2, ts.Add(-time.Minute))
	ftOnly.Rank = 0.9
	sharedFT := shared
	sharedFT.Rank = 0.5
	sharedVec := shared
	sharedVec.Distance = 0.2

	st := &fakeStore{
		fulltext: []store.MessageHit{ftOnly, sharedFT},
		vector:   []store.MessageHit{sharedVec},
	}
	engine := NewEngineWithEmbedder(st, &fakeEmbedder{vec: []float32{0.1, 0.2}})

	resp, err := engine.Search(context.Background(), "hello", []string{"fulltext", "vector"}, nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 fused results, got %d", len(resp.Results))
	}

	var sharedResult *Result
	for i := range resp.Results {
		if resp.Results[i].ID == "1" {
			sharedResult = &resp.Results[i]
		}
	}
	if sharedResult == nil {
		t.Fatal("shared message missing from results")
	}
	if len(sharedResult.MethodsUsed) != 2 {
		t.Fatalf("expected 2 methods for shared message, got %v", sharedResult.MethodsUsed)
	}
	// (0.85*0.5 + 0.7*0.8) / (0.85 + 0.7)
	want := (0.85*0.5 + 0.7*0.8) / 1.55
	if diff := sharedResult.CombinedScore - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("combined score = %v, want %v", sharedResult.CombinedScore, want)
	}

	for _, r := range resp.Results {
		if r.CombinedScore < 0 || r.CombinedScore > 1 {
			t.Fatalf("combined score out of [0,1]: %v", r.CombinedScore)
		}
	}
	if resp.Results[0].CombinedScore < resp.Results[1].CombinedScore {
		t.Fatal("results not sorted by combined score descending")
	}
}

func TestSearch_TopKTruncates(t *testing.T) {
	ts := time.Now().UTC()
	var hits []store.MessageHit
	for i := 1; i <= 8; i++ {
		hits = append(hits, hitAt(int64(i), ts.Add(-time.Duration(i)*time.Minute)))
	}
	st := &fakeStore{structured: hits}
	engine := NewEngine(st)

	resp, err := engine.Search(context.Background(), "", []string{"structured"}, nil, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
}

func TestSearch_UnknownMethodIsIgnored(t *testing.T) {
	st := &fakeStore{}
	engine := NewEngine(st)

	resp, err := engine.Search(context.Background(), "", []string{"graph"}, nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(resp.MethodsExecuted) != 0 {
		t.Fatalf("expected no executed methods, got %v", resp.MethodsExecuted)
	}
}

func TestSearch_StrategyErrorPropagates(t *testing.T) {
	st := &fakeStore{structuredErr: errors.New("connection reset")}
	engine := NewEngine(st)

	if _, err := engine.Search(context.Background(), "", []string{"structured"}, nil, 10); err == nil {
		t.Fatal("expected store error to propagate")
	}
}

func TestSearch_MalformedDateFilterFails(t *testing.T) {
	st := &fakeStore{}
	engine := NewEngine(st)

	_, err := engine.Search(context.Background(), "", nil, []Clause{{Field: "date_after", Value: "not-a-date"}}, 10)
	if err == nil {
		t.Fatal("expected malformed date error")
	}
}

func TestSearch_DeterministicOrdering(t *testing.T) {
	ts := time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC)
	hits := []store.MessageHit{hitAt(1, ts), hitAt(2, ts.Add(time.Hour)), hitAt(3, ts)}
	for i := range hits {
		hits[i].Rank = 5.0 // all clamp to 1.0, forcing the tie-break
	}
	st := &fakeStore{fulltext: hits}
	engine := NewEngine(st)

	first, err := engine.Search(context.Background(), "hi", []string{"fulltext"}, nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	second, err := engine.Search(context.Background(), "hi", []string{"fulltext"}, nil, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	wantOrder := []string{"2", "1", "3"} // timestamp desc, then id
	for i, want := range wantOrder {
		if first.Results[i].ID != want {
			t.Fatalf("rank %d: got id %s, want %s", i, first.Results[i].ID, want)
		}
		if second.Results[i].ID != first.Results[i].ID {
			t.Fatalf("ordering not deterministic at rank %d", i)
		}
	}
}

func TestScoreStructured_FloorsAtPointThree(t *testing.T) {
	hits := make([]store.MessageHit, 40)
	scoredHits := scoreStructured(hits)
	if scoredHits[0].score != 1.0 {
		t.Fatalf("rank 0 score = %v, want 1.0", scoredHits[0].score)
	}
	if got := scoredHits[10].score; got < 0.699 || got > 0.701 {
		t.Fatalf("rank 10 score = %v, want 0.7", got)
	}
	if scoredHits[39].score != 0.3 {
		t.Fatalf("rank 39 score = %v, want floor 0.3", scoredHits[39].score)
	}
}

func TestCapLimit(t *testing.T) {
	tests := []struct{ in, want int }{
		{0, 1}, {-5, 1}, {1, 1}, {50, 50}, {100, 100}, {101, 100}, {1000, 100},
	}
	for _, tt := range tests {
		if got := CapLimit(tt.in); got != tt.want {
			t.Fatalf("CapLimit(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
