// Package vector stores per-source collections of chunk vectors and answers k-nearest-neighbor
// queries over them.
package vector

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/sourceid"
)

// DefaultK is the number of hits returned when a query asks for k <= 0.
const DefaultK = 5

// Store holds one collection per source. Replacing a collection is atomic: concurrent queries
// see either the old collection or the new one, never a mix.
type Store interface {
	CreateOrReplace(ctx context.Context, sourceID string, chunks []models.Chunk, vectors [][]float32) (*models.Collection, error)
	Query(ctx context.Context, sourceID string, vector []float32, k int) ([]models.Hit, error)
	// Delete removes the source's collection. Deleting a missing collection is not an error.
	Delete(ctx context.Context, sourceID string) error
	Collections(ctx context.Context) ([]models.Collection, error)
	Close() error
}

// StoreType names a Store backend.
type StoreType string

const (
	// StoreTypeMemory keeps collections in process memory.
	StoreTypeMemory StoreType = "memory"
	// StoreTypeSQLite persists collections in a SQLite database file.
	StoreTypeSQLite StoreType = "sqlite"
)

// NewStore creates a store of the given kind. Supported kinds: "memory" (default), "sqlite".
// dimensions > 0 pins the vector dimension; 0 accepts whatever the first collection uses.
// opts apply to the sqlite store only.
func NewStore(kind, path string, dimensions int, opts ...SQLiteOption) (Store, error) {
	switch StoreType(kind) {
	case StoreTypeMemory, "":
		return NewMemoryStore(dimensions), nil
	case StoreTypeSQLite:
		s, err := NewSQLiteStore(path, dimensions, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store type: %s (supported: memory, sqlite)", kind)
	}
}

// buildRecords validates a replacement and returns the collection metadata and records for it.
func buildRecords(sourceID string, chunks []models.Chunk, vectors [][]float32, wantDims int) (models.Collection, []models.Record, error) {
	if err := sourceid.Validate(sourceID); err != nil {
		return models.Collection{}, nil, err
	}
	if len(chunks) == 0 {
		return models.Collection{}, nil, fmt.Errorf("%w: collection needs at least one chunk", models.ErrInvalidInput)
	}
	if len(chunks) != len(vectors) {
		return models.Collection{}, nil, fmt.Errorf("%w: %d chunks but %d vectors", models.ErrInvalidInput, len(chunks), len(vectors))
	}
	dims := len(vectors[0])
	if dims == 0 {
		return models.Collection{}, nil, fmt.Errorf("%w: empty vector", models.ErrDimensionMismatch)
	}
	if wantDims > 0 && dims != wantDims {
		return models.Collection{}, nil, fmt.Errorf("%w: store expects %d dimensions, got %d", models.ErrDimensionMismatch, wantDims, dims)
	}
	records := make([]models.Record, len(chunks))
	for i, c := range chunks {
		if len(vectors[i]) != dims {
			return models.Collection{}, nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d", models.ErrDimensionMismatch, i, len(vectors[i]), dims)
		}
		vec := make([]float32, dims)
		copy(vec, vectors[i])
		records[i] = models.Record{
			ID:        fmt.Sprintf("chunk_%d", i),
			Position:  i,
			Text:      c.Text,
			StartTime: c.StartTime,
			Vector:    vec,
		}
	}
	meta := models.Collection{
		Name:       sourceid.CollectionName(sourceID),
		SourceID:   sourceID,
		Dimensions: dims,
		ChunkCount: len(records),
		Generation: uuid.NewString(),
		CreatedAt:  time.Now().UTC(),
	}
	return meta, records, nil
}

func notFound(sourceID string) error {
	return fmt.Errorf("%w: %s", models.ErrCollectionNotFound, sourceid.CollectionName(sourceID))
}
