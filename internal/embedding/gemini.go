package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotoba/internal/gemini"
	"github.com/hyperjump/kotoba/internal/models"
	"go.uber.org/zap"
)

// Gemini batchEmbedContents accepts at most this many texts per request.
const MaxGeminiBatchSize = 100

// GeminiEmbedder embeds text through the Gemini embedding API. Each request passes through
// the client's embed limiter; batches are split into groups of batchSize texts.
type GeminiEmbedder struct {
	client     *gemini.Client
	model      string
	dimensions int
	batchSize  int
	logger     *zap.Logger // optional
}

// GeminiOption configures a GeminiEmbedder.
type GeminiOption func(*GeminiEmbedder)

// WithLogger sets a logger for batch progress.
func WithLogger(l *zap.Logger) GeminiOption {
	return func(e *GeminiEmbedder) { e.logger = l }
}

// NewGeminiEmbedder creates an embedder for model producing vectors of the given dimensions.
func NewGeminiEmbedder(client *gemini.Client, model string, dimensions, batchSize int, opts ...GeminiOption) (*GeminiEmbedder, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: gemini client is required", models.ErrInvalidInput)
	}
	if model == "" || dimensions <= 0 {
		return nil, fmt.Errorf("%w: gemini embedder needs a model and positive dimensions", models.ErrInvalidInput)
	}
	if batchSize <= 0 || batchSize > MaxGeminiBatchSize {
		batchSize = MaxGeminiBatchSize
	}
	e := &GeminiEmbedder{
		client:     client,
		model:      model,
		dimensions: dimensions,
		batchSize:  batchSize,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Embed embeds a single query text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.EmbedContent(ctx, &gemini.EmbedContentRequest{
		Model:                e.model,
		Content:              gemini.Content{Parts: []gemini.Part{{Text: text}}},
		TaskType:             gemini.TaskRetrievalQuery,
		OutputDimensionality: e.dimensions,
	})
	if err != nil {
		return nil, collaboratorError(ctx, err)
	}
	vec := toFloat32(resp.Embedding.Values)
	if err := CheckDimensions([][]float32{vec}, e.dimensions); err != nil {
		return nil, err
	}
	return vec, nil
}

// EmbedBatch embeds document texts, one rate-limited request per group of batchSize.
func (e *GeminiEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	total := (len(texts) + e.batchSize - 1) / e.batchSize
	for b := 0; b < total; b++ {
		start := b * e.batchSize
		end := min(start+e.batchSize, len(texts))
		if e.logger != nil {
			e.logger.Debug("embedding batch", zap.Int("batch", b+1), zap.Int("of", total), zap.Int("texts", end-start))
		}
		reqs := make([]gemini.EmbedContentRequest, 0, end-start)
		for _, text := range texts[start:end] {
			reqs = append(reqs, gemini.EmbedContentRequest{
				Content:              gemini.Content{Parts: []gemini.Part{{Text: text}}},
				TaskType:             gemini.TaskRetrievalDocument,
				OutputDimensionality: e.dimensions,
			})
		}
		resp, err := e.client.BatchEmbedContents(ctx, e.model, reqs)
		if err != nil {
			return nil, collaboratorError(ctx, err)
		}
		for _, emb := range resp.Embeddings {
			out = append(out, toFloat32(emb.Values))
		}
	}
	if err := CheckDimensions(out, e.dimensions); err != nil {
		return nil, err
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op; the client has no resources to release.
func (e *GeminiEmbedder) Close() error {
	return nil
}

// collaboratorError wraps a provider failure, leaving context errors untouched so callers can
// tell a deadline from an outage.
func collaboratorError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("%w: gemini embedding: %w", models.ErrCollaboratorUnavailable, err)
}

func toFloat32(values []float64) []float32 {
	out := make([]float32, len(values))
	for i, v := range values {
		out[i] = float32(v)
	}
	return out
}
