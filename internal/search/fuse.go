package search

import (
	"sort"

	"wavault/internal/store"
)

// Strategy weights for fusion. Unknown strategy names fall back to
// defaultWeight so a fourth strategy can join without touching the formula.
var strategyWeights = map[string]float64{
	"structured": 1.0,
	"fulltext":   0.85,
	"vector":     0.7,
}

const defaultWeight = 0.5

func weightOf(method string) float64 {
	if w, ok := strategyWeights[method]; ok {
		return w
	}
	return defaultWeight
}

// candidate accumulates one message's per-strategy scores across whichever
// strategies returned it.
type candidate struct {
	hit     store.MessageHit
	scores  map[string]float64
	methods []string
}

// scored is one strategy's output: hits paired with scores in [0,1].
type scored struct {
	hit   store.MessageHit
	score float64
}

type fusionMap struct {
	byID  map[int64]*candidate
	order []int64
}

func newFusionMap() *fusionMap {
	return &fusionMap{byID: map[int64]*candidate{}}
}

func (f *fusionMap) add(method string, results []scored) {
	for _, r := range results {
		c, ok := f.byID[r.hit.ID]
		if !ok {
			c = &candidate{hit: r.hit, scores: map[string]float64{}}
			f.byID[r.hit.ID] = c
			f.order = append(f.order, r.hit.ID)
		}
		if _, seen := c.scores[method]; !seen {
			c.methods = append(c.methods, method)
		}
		c.scores[method] = r.score
	}
}

// combinedScore is the weighted average over the strategies that actually
// returned the candidate. Missing strategies do not penalize it.
func (c *candidate) combinedScore() float64 {
	var weighted, total float64
	for method, score := range c.scores {
		w := weightOf(method)
		weighted += w * score
		total += w
	}
	if total == 0 {
		return 0
	}
	return weighted / total
}

// ranked returns all candidates sorted by combined score descending, with a
// deterministic tie-break on timestamp descending then message id.
func (f *fusionMap) ranked() []*candidate {
	out := make([]*candidate, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.byID[id])
	}
	sort.SliceStable(out, func(i, j int) bool {
		si, sj := out[i].combinedScore(), out[j].combinedScore()
		if si != sj {
			return si > sj
		}
		ti, tj := out[i].hit.Timestamp, out[j].hit.Timestamp
		switch {
		case ti == nil && tj == nil:
			return out[i].hit.ID < out[j].hit.ID
		case ti == nil:
			return false
		case tj == nil:
			return true
		case !ti.Equal(*tj):
			return ti.After(*tj)
		}
		return out[i].hit.ID < out[j].hit.ID
	})
	return out
}
