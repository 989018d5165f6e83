// Package backfill fills in body_embedding for messages synced without one.
// The sync process writes message rows as fast as it can and leaves the
// embedding column NULL; this is the batch job that catches up afterwards.
package backfill

import (
	"context"
	"log/slog"

	"github.com/pkg/errors"

	"wavault/internal/embed"
	"wavault/internal/store"
)

// DefaultBatchSize is how many message bodies go to the embedding service
// per request.
const DefaultBatchSize = 32

// Store is the subset of archive operations the backfill needs.
type Store interface {
	MessagesMissingEmbedding(ctx context.Context, limit int) ([]store.PendingEmbedding, error)
	UpdateMessageEmbedding(ctx context.Context, id int64, vec []float32) error
}

// Options controls one backfill run.
type Options struct {
	// BatchSize per embedding request. Zero means DefaultBatchSize.
	BatchSize int
	// Limit stops the run after roughly this many messages. Zero means
	// run until no messages are missing an embedding.
	Limit int
}

// Run processes messages missing an embedding in batches until none remain
// or the limit is reached. Returns the number of messages updated. An
// embedding service error aborts the run; rows already written stay
// written, so a rerun resumes where this one stopped.
func Run(ctx context.Context, st Store, embedder embed.Embedder, opts Options) (int, error) {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		pending, err := st.MessagesMissingEmbedding(ctx, batchSize)
		if err != nil {
			return total, err
		}
		if len(pending) == 0 {
			break
		}

		texts := make([]string, len(pending))
		for i, p := range pending {
			texts[i] = p.BodyText
		}

		vecs, err := embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return total, errors.Wrap(err, "embedding batch failed")
		}
		if len(vecs) != len(pending) {
			slog.Warn("embedding count mismatch",
				"got", len(vecs), "want", len(pending))
		}

		updated := 0
		for i, p := range pending {
			if i >= len(vecs) || embed.IsZero(vecs[i]) {
				continue
			}
			if err := st.UpdateMessageEmbedding(ctx, p.ID, vecs[i]); err != nil {
				return total, err
			}
			updated++
		}
		// A batch that wrote nothing would reselect the same rows forever.
		if updated == 0 {
			slog.Warn("batch produced no usable embeddings, stopping",
				"batch", len(pending))
			break
		}

		total += updated
		slog.Info("embed backfill progress", "batch", updated, "total", total)

		if opts.Limit > 0 && total >= opts.Limit {
			break
		}
	}
	return total, nil
}
