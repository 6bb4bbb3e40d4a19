// Package embedding turns chunk and query text into fixed-dimension vectors. Backends: Gemini
// (remote, rate limited), ONNX (local), and a deterministic hash embedder.
package embedding

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotoba/internal/models"
)

// Embedder produces vector embeddings for text. EmbedBatch returns vectors in input order.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Backend kinds accepted by configuration.
const (
	KindGemini = "gemini"
	KindONNX   = "onnx"
	KindHash   = "hash"
)

// CheckDimensions returns ErrDimensionMismatch if any vector's length differs from want.
func CheckDimensions(vectors [][]float32, want int) error {
	for i, v := range vectors {
		if len(v) != want {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", models.ErrDimensionMismatch, i, len(v), want)
		}
	}
	return nil
}
