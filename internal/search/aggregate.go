package search

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// GroupByFields lists the aggregations this engine supports. Anything else
// must be rejected before reaching Aggregate.
var GroupByFields = []string{"chat_id", "contact_push_name"}

// Count returns the total number of messages matching the filter clauses.
func (e *Engine) Count(ctx context.Context, clauses []Clause) (*Response, error) {
	filter, err := ParseClauses(clauses)
	if err != nil {
		return nil, err
	}

	total, err := e.store.CountMessages(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &Response{
		Success:         true,
		Results:         []Result{},
		TotalAvailable:  total,
		Count:           &total,
		Mode:            "count",
		MethodsExecuted: []string{"count"},
		TimingMS:        map[string]float64{},
	}, nil
}

// Aggregate returns the topN groups by message count, grouped by chat or by
// counterparty identity.
func (e *Engine) Aggregate(ctx context.Context, groupBy string, clauses []Clause, topN int) (*Response, error) {
	topN = CapLimit(topN)

	filter, err := ParseClauses(clauses)
	if err != nil {
		return nil, err
	}

	var aggregates []Aggregate
	switch groupBy {
	case "chat_id":
		groups, err := e.store.CountByChat(ctx, filter, topN)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			label := "Unknown"
			if g.Name != nil && *g.Name != "" {
				label = *g.Name
			}
			aggregates = append(aggregates, Aggregate{
				GroupValue: strconv.FormatInt(g.ChatID, 10),
				Count:      g.Count,
				Label:      label,
				Metadata:   map[string]any{},
			})
		}

	case "contact_push_name":
		groups, err := e.store.CountByCounterparty(ctx, filter, topN)
		if err != nil {
			return nil, err
		}
		for _, g := range groups {
			aggregates = append(aggregates, Aggregate{
				GroupValue: g.JID,
				Count:      g.Count,
				Label:      e.counterpartyLabel(ctx, g.JID),
				Metadata:   map[string]any{},
			})
		}

	default:
		return nil, fmt.Errorf("unsupported group_by %q", groupBy)
	}

	if aggregates == nil {
		aggregates = []Aggregate{}
	}
	return &Response{
		Success:         true,
		Results:         []Result{},
		Mode:            "aggregate",
		Aggregates:      aggregates,
		MethodsExecuted: []string{"aggregate"},
		TimingMS:        map[string]float64{},
	}, nil
}

// counterpartyLabel resolves a group's JID to a display name, falling back
// to the JID's local part, then "Unknown".
func (e *Engine) counterpartyLabel(ctx context.Context, jid string) string {
	ref, err := e.store.ResolveContact(ctx, jid)
	if err != nil {
		slog.Debug("contact lookup failed for aggregate", "jid", jid, "error", err)
	}
	if ref != nil && ref.PushName != nil {
		if name := strings.TrimSpace(*ref.PushName); name != "" {
			return name
		}
	}
	if local := strings.TrimSpace(localPart(jid)); local != "" {
		return local
	}
	return "Unknown"
}
