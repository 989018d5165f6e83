package search

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"wavault/internal/store"
)

// ParseClauses translates filter clauses into the single predicate every
// strategy applies. Recognized fields: chat_id, from_me, date_after,
// date_before. Unknown fields, nil values, and blank string values are
// skipped without error; malformed values for recognized fields are
// reported.
func ParseClauses(clauses []Clause) (store.MessageFilter, error) {
	var f store.MessageFilter
	for _, c := range clauses {
		if c.Value == nil {
			continue
		}
		if s, ok := c.Value.(string); ok && strings.TrimSpace(s) == "" {
			continue
		}
		switch c.Field {
		case "chat_id":
			id, err := toInt64(c.Value)
			if err != nil {
				return f, fmt.Errorf("invalid chat_id filter: %w", err)
			}
			f.ChatID = &id
		case "from_me":
			b, err := toBool(c.Value)
			if err != nil {
				return f, fmt.Errorf("invalid from_me filter: %w", err)
			}
			f.FromMe = &b
		case "date_after":
			t, err := ParseDateBound(fmt.Sprint(c.Value), false)
			if err != nil {
				return f, fmt.Errorf("invalid date_after filter: %w", err)
			}
			f.After = &t
		case "date_before":
			t, err := ParseDateBound(fmt.Sprint(c.Value), true)
			if err != nil {
				return f, fmt.Errorf("invalid date_before filter: %w", err)
			}
			f.Before = &t
		}
	}
	return f, nil
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
}

// ParseDateBound parses a filter date value. A value with a time component
// is taken as a full timestamp; a bare date expands to start of day, or to
// 23:59:59.999999 when it is an upper bound.
func ParseDateBound(s string, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date string")
	}

	if strings.ContainsAny(s, "T ") {
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("unparseable timestamp %q", s)
	}

	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparseable date %q", s)
	}
	if endOfDay {
		return d.Add(24*time.Hour - time.Microsecond), nil
	}
	return d, nil
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		return strconv.ParseBool(strings.TrimSpace(x))
	case float64:
		return x != 0, nil
	case int:
		return x != 0, nil
	default:
		return false, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}
