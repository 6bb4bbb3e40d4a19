package indexer

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/kotoba/internal/embedding"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/vector"
	"go.uber.org/zap"
)

// Indexer chunks transcripts, embeds the chunks and publishes them as a collection.
type Indexer struct {
	chunker  *Chunker
	embedder embedding.Embedder
	store    vector.Store
	logger   *zap.Logger // optional; when set, logs debug events
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output (chunking, embedding, publishing).
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(chunker *Chunker, embedder embedding.Embedder, store vector.Store, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		chunker:  chunker,
		embedder: embedder,
		store:    store,
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Chunk splits segments with the configured chunker. A transcript with no words is rejected
// with ErrInvalidInput.
func (idx *Indexer) Chunk(segments []models.TimedSegment) ([]models.Chunk, error) {
	chunks, err := idx.chunker.Chunk(segments)
	if err != nil {
		return nil, err
	}
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: transcript has no words", models.ErrInvalidInput)
	}
	return chunks, nil
}

// IndexChunks embeds chunks and replaces sourceID's collection with them. Nothing is written
// unless every chunk was embedded.
func (idx *Indexer) IndexChunks(ctx context.Context, sourceID string, chunks []models.Chunk) (*models.Collection, error) {
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer embedding chunks", zap.String("source_id", sourceID), zap.Int("chunks", len(chunks)))
	}
	vectors, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", embedFailure(ctx, err))
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("%w: embedder returned %d vectors for %d chunks", models.ErrCollaboratorUnavailable, len(vectors), len(chunks))
	}
	if err := embedding.CheckDimensions(vectors, idx.embedder.Dimensions()); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	coll, err := idx.store.CreateOrReplace(ctx, sourceID, chunks, vectors)
	if err != nil {
		return nil, fmt.Errorf("failed to store collection: %w", err)
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer collection published",
			zap.String("collection", coll.Name),
			zap.Int("chunks", coll.ChunkCount),
			zap.String("generation", coll.Generation))
	}
	return coll, nil
}

// Delete removes sourceID's collection.
func (idx *Indexer) Delete(ctx context.Context, sourceID string) error {
	if idx.logger != nil {
		idx.logger.Debug("indexer deleting collection", zap.String("source_id", sourceID))
	}
	if err := idx.store.Delete(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	return nil
}

// Chunker returns the configured chunker.
// embedFailure marks backend errors as collaborator failures, leaving context and dimension
// errors as they are.
func embedFailure(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, models.ErrCollaboratorUnavailable) || errors.Is(err, models.ErrDimensionMismatch) {
		return err
	}
	return fmt.Errorf("%w: %w", models.ErrCollaboratorUnavailable, err)
}
