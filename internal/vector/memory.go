package vector

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/hyperjump/kotoba/internal/models"
)

// MemoryStore keeps collections in memory. A replacement is built off to the side and
// published by swapping one map entry under the write lock.
type MemoryStore struct {
	dimensions  int
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

// memoryCollection is immutable once published.
type memoryCollection struct {
	meta    models.Collection
	records []models.Record
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(dimensions int) *MemoryStore {
	return &MemoryStore{
		dimensions:  dimensions,
		collections: make(map[string]*memoryCollection),
	}
}

// CreateOrReplace builds a new collection for sourceID and atomically replaces any existing one.
func (m *MemoryStore) CreateOrReplace(ctx context.Context, sourceID string, chunks []models.Chunk, vectors [][]float32) (*models.Collection, error) {
	meta, records, err := buildRecords(sourceID, chunks, vectors, m.dimensions)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.collections[sourceID] = &memoryCollection{meta: meta, records: records}
	m.mu.Unlock()
	out := meta
	return &out, nil
}

// Query returns the k nearest chunks of sourceID's collection.
func (m *MemoryStore) Query(ctx context.Context, sourceID string, vector []float32, k int) ([]models.Hit, error) {
	m.mu.RLock()
	c, ok := m.collections[sourceID]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(sourceID)
	}
	return nearest(c.records, vector, k)
}

// Delete removes sourceID's collection if present.
func (m *MemoryStore) Delete(ctx context.Context, sourceID string) error {
	m.mu.Lock()
	delete(m.collections, sourceID)
	m.mu.Unlock()
	return nil
}

// Collections lists collection metadata ordered by source id.
func (m *MemoryStore) Collections(ctx context.Context) ([]models.Collection, error) {
	m.mu.RLock()
	out := make([]models.Collection, 0, len(m.collections))
	for _, c := range m.collections {
		out = append(out, c.meta)
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b models.Collection) int { return strings.Compare(a.SourceID, b.SourceID) })
	return out, nil
}

// Close is a no-op for MemoryStore.
func (m *MemoryStore) Close() error {
	return nil
}
