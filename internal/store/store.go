// Package store provides the PostgreSQL storage layer for wavault.
//
// The archive lives in three tables written by an external sync process:
// chats, contacts, and messages. The search core only reads them, plus one
// write path that backfills the derived body_embedding column. Full-text
// ranking uses the precomputed search_tsv tsvector; vector ranking uses the
// pgvector body_embedding column with cosine distance.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// EmbeddingDim is the fixed dimensionality of message body embeddings.
const EmbeddingDim = 768

// JID suffixes for the two identifier schemes the messaging protocol uses
// for the same person, plus the group-conversation suffix.
const (
	PhoneSuffix = "@s.whatsapp.net"
	LIDSuffix   = "@lid"
	GroupSuffix = "@g.us"
)

// Chat carries a conversation's identity columns: the primary JID and, for
// LID-scheme chats, the alternate phone-number JID.
type Chat struct {
	ID    int64
	JID   string
	JIDPN *string
}

// Message is one unit of conversation content.
type Message struct {
	ID          int64
	ChatID      int64
	WAMessageID string
	RemoteJID   string
	Participant *string
	FromMe      bool
	Timestamp   *time.Time
	MessageType string
	BodyText    *string
}

// MessageHit is a message returned by one retrieval query, carried with the
// joined chat fields and the query's raw ranking signal.
type MessageHit struct {
	Message
	ChatName    *string
	ChatIsGroup bool

	// Rank is the ts_rank_cd value (fulltext query only).
	Rank float64
	// Distance is the cosine distance (vector query only).
	Distance float64
}

// ContactRef is the outcome of resolving a JID to a contact row.
type ContactRef struct {
	PushName *string
	WAID     string
}

// ChatCount is one group in a by-chat aggregation.
type ChatCount struct {
	ChatID int64
	Name   *string
	Count  int64
}

// JIDCount is one group in a by-counterparty aggregation.
type JIDCount struct {
	JID   string
	Count int64
}

// Store wraps the PostgreSQL connection pool.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection. The pool is
// sized for a single-archive personal instance.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing connection, mainly for tests.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying pool for read-only collaborators.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CountMessages returns the number of messages matching the filter.
func (s *Store) CountMessages(ctx context.Context, f MessageFilter) (int64, error) {
	where, args := f.appendWhere([]string{"1 = 1"}, nil)

	query := `SELECT COUNT(*) FROM messages m WHERE ` + joinAnd(where)
	var total int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, errors.Wrap(err, "failed to count messages")
	}
	return total, nil
}

// CountByChat returns the topN chats by matching message count.
func (s *Store) CountByChat(ctx context.Context, f MessageFilter, topN int) ([]ChatCount, error) {
	where, args := f.appendWhere([]string{"1 = 1"}, nil)
	args = append(args, topN)

	query := `
		SELECT c.id, c.name, COUNT(*) AS cnt
		FROM messages m
		JOIN chats c ON m.chat_id = c.id
		WHERE ` + joinAnd(where) + `
		GROUP BY c.id, c.name
		ORDER BY cnt DESC
		LIMIT ` + placeholder(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate by chat")
	}
	defer rows.Close()

	var list []ChatCount
	for rows.Next() {
		var g ChatCount
		var name sql.NullString
		if err := rows.Scan(&g.ChatID, &name, &g.Count); err != nil {
			return nil, errors.Wrap(err, "failed to scan chat aggregate")
		}
		if name.Valid {
			g.Name = &name.String
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

// CountByCounterparty returns the topN counterparty JIDs by matching message
// count. The counterparty is the participant when set (group messages), else
// the chat's remote JID.
func (s *Store) CountByCounterparty(ctx context.Context, f MessageFilter, topN int) ([]JIDCount, error) {
	const counterparty = "COALESCE(m.participant, m.remote_jid)"

	where := []string{counterparty + " IS NOT NULL", counterparty + " <> ''"}
	where, args := f.appendWhere(where, nil)
	args = append(args, topN)

	query := `
		SELECT ` + counterparty + ` AS jid, COUNT(*) AS cnt
		FROM messages m
		WHERE ` + joinAnd(where) + `
		GROUP BY ` + counterparty + `
		ORDER BY cnt DESC
		LIMIT ` + placeholder(len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate by counterparty")
	}
	defer rows.Close()

	var list []JIDCount
	for rows.Next() {
		var g JIDCount
		if err := rows.Scan(&g.JID, &g.Count); err != nil {
			return nil, errors.Wrap(err, "failed to scan counterparty aggregate")
		}
		list = append(list, g)
	}
	return list, rows.Err()
}

func placeholder(n int) string {
	return fmt.Sprintf("$%d", n)
}
