// Package session records which sources have finished indexing and which collection serves
// each of them.
package session

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotoba/internal/models"
)

// Registry maps a source id to its active collection. An entry exists only for sources whose
// indexing completed.
type Registry interface {
	// Register records or replaces the entry for entry.SourceID.
	Register(ctx context.Context, entry models.SessionEntry) error
	// Get returns ErrSourceNotIndexed when the source has no live entry.
	Get(ctx context.Context, sourceID string) (*models.SessionEntry, error)
	IsReady(ctx context.Context, sourceID string) bool
	// Evict removes the entry. Evicting a missing entry is not an error.
	Evict(ctx context.Context, sourceID string) error
	Len(ctx context.Context) int
}

// Backend kinds accepted by configuration.
const (
	KindMemory = "memory"
	KindRedis  = "redis"
)

func notIndexed(sourceID string) error {
	return fmt.Errorf("%w: %s", models.ErrSourceNotIndexed, sourceID)
}
