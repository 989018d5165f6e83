package store

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"
)

// PendingEmbedding is a message awaiting an embedding backfill.
type PendingEmbedding struct {
	ID       int64
	BodyText string
}

// MessagesMissingEmbedding returns up to limit messages that have body text
// but no stored embedding yet.
func (s *Store) MessagesMissingEmbedding(ctx context.Context, limit int) ([]PendingEmbedding, error) {
	query := `
		SELECT id, body_text
		FROM messages
		WHERE body_embedding IS NULL
			AND body_text IS NOT NULL
			AND body_text <> ''
		ORDER BY id
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages missing embedding")
	}
	defer rows.Close()

	var pending []PendingEmbedding
	for rows.Next() {
		var p PendingEmbedding
		if err := rows.Scan(&p.ID, &p.BodyText); err != nil {
			return nil, errors.Wrap(err, "failed to scan pending embedding")
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// UpdateMessageEmbedding writes the derived embedding column for one message.
// This is the search core's only write path. The vector must match the
// column's fixed dimensionality.
func (s *Store) UpdateMessageEmbedding(ctx context.Context, id int64, vec []float32) error {
	if len(vec) != EmbeddingDim {
		return errors.Errorf("embedding for message %d has %d dimensions, want %d", id, len(vec), EmbeddingDim)
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET body_embedding = $1 WHERE id = $2`,
		pgvector.NewVector(vec), id)
	return errors.Wrapf(err, "failed to update embedding for message %d", id)
}
