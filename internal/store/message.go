package store

import (
	"context"
	"database/sql"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"
)

const messageColumns = `
	m.id, m.chat_id, m.wa_message_id, m.remote_jid, m.participant,
	m.from_me, m.timestamp, m.message_type, m.body_text,
	c.name, c.is_group`

// StructuredSearch returns the most recent matching messages. No text
// ranking is involved; callers assign browse-style scores from row order.
func (s *Store) StructuredSearch(ctx context.Context, f MessageFilter, limit int) ([]MessageHit, error) {
	where, args := f.appendWhere([]string{"1 = 1"}, nil)
	args = append(args, limit)

	query := `
		SELECT ` + messageColumns + `
		FROM messages m
		JOIN chats c ON m.chat_id = c.id
		WHERE ` + joinAnd(where) + `
		ORDER BY m.timestamp DESC NULLS LAST
		LIMIT ` + placeholder(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run structured search")
	}
	defer rows.Close()
	return scanHits(rows, scanPlain)
}

// FullTextSearch ranks messages against the query text using the
// precomputed search_tsv column, restricted to rows the tsquery matches.
func (s *Store) FullTextSearch(ctx context.Context, queryText string, f MessageFilter, limit int) ([]MessageHit, error) {
	where, args := f.appendWhere([]string{"1 = 1"}, nil)

	args = append(args, queryText)
	tsquery := "plainto_tsquery('simple', " + placeholder(len(args)) + ")"
	args = append(args, limit)

	query := `
		SELECT ` + messageColumns + `,
			ts_rank_cd(m.search_tsv, ` + tsquery + `) AS rank
		FROM messages m
		JOIN chats c ON m.chat_id = c.id
		WHERE ` + joinAnd(where) + `
			AND m.search_tsv IS NOT NULL
			AND m.search_tsv @@ ` + tsquery + `
		ORDER BY rank DESC, m.timestamp DESC NULLS LAST
		LIMIT ` + placeholder(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run fulltext search")
	}
	defer rows.Close()
	return scanHits(rows, scanWithRank)
}

// VectorSearch ranks messages by cosine distance between the query vector
// and the stored body embeddings. The <=> operator computes cosine
// distance, so ascending order puts the most similar messages first.
func (s *Store) VectorSearch(ctx context.Context, queryVec []float32, f MessageFilter, limit int) ([]MessageHit, error) {
	where, args := f.appendWhere([]string{"1 = 1"}, nil)

	args = append(args, pgvector.NewVector(queryVec))
	distance := "m.body_embedding <=> " + placeholder(len(args))
	args = append(args, limit)

	query := `
		SELECT ` + messageColumns + `,
			` + distance + ` AS distance
		FROM messages m
		JOIN chats c ON m.chat_id = c.id
		WHERE ` + joinAnd(where) + `
			AND m.body_embedding IS NOT NULL
		ORDER BY ` + distance + ` ASC, m.timestamp DESC NULLS LAST
		LIMIT ` + placeholder(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to run vector search")
	}
	defer rows.Close()
	return scanHits(rows, scanWithDistance)
}

type hitScanMode int

const (
	scanPlain hitScanMode = iota
	scanWithRank
	scanWithDistance
)

func scanHits(rows *sql.Rows, mode hitScanMode) ([]MessageHit, error) {
	var hits []MessageHit
	for rows.Next() {
		var h MessageHit
		var participant, bodyText, chatName sql.NullString
		var ts sql.NullTime

		dest := []any{
			&h.ID, &h.ChatID, &h.WAMessageID, &h.RemoteJID, &participant,
			&h.FromMe, &ts, &h.MessageType, &bodyText,
			&chatName, &h.ChatIsGroup,
		}
		switch mode {
		case scanWithRank:
			dest = append(dest, &h.Rank)
		case scanWithDistance:
			dest = append(dest, &h.Distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, "failed to scan message hit")
		}

		if participant.Valid {
			h.Participant = &participant.String
		}
		if bodyText.Valid {
			h.BodyText = &bodyText.String
		}
		if chatName.Valid {
			h.ChatName = &chatName.String
		}
		if ts.Valid {
			t := ts.Time
			h.Timestamp = &t
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
