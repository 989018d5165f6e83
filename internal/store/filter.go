package store

import (
	"strings"
	"time"
)

// MessageFilter is the conjunction of recognized filter clauses. Every
// retrieval query applies it the same way, so structured, fulltext, and
// vector results are always filtered by identical criteria.
type MessageFilter struct {
	ChatID *int64
	FromMe *bool
	After  *time.Time // inclusive lower bound on timestamp
	Before *time.Time // inclusive upper bound on timestamp
}

// appendWhere appends the filter's conditions to a where clause under
// construction, numbering placeholders after the existing args.
func (f MessageFilter) appendWhere(where []string, args []any) ([]string, []any) {
	if f.ChatID != nil {
		where, args = append(where, "m.chat_id = "+placeholder(len(args)+1)), append(args, *f.ChatID)
	}
	if f.FromMe != nil {
		where, args = append(where, "m.from_me = "+placeholder(len(args)+1)), append(args, *f.FromMe)
	}
	if f.After != nil {
		where, args = append(where, "m.timestamp >= "+placeholder(len(args)+1)), append(args, *f.After)
	}
	if f.Before != nil {
		where, args = append(where, "m.timestamp <= "+placeholder(len(args)+1)), append(args, *f.Before)
	}
	return where, args
}

func joinAnd(where []string) string {
	return strings.Join(where, " AND ")
}
