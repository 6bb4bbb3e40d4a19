package session

import (
	"context"
	"sync"
	"time"

	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/ratelimit"
)

// MemoryRegistry is an in-process Registry. With a positive TTL, entries expire that long after
// registration; expired entries read as absent and are pruned lazily.
type MemoryRegistry struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	clock   ratelimit.Clock
}

type memoryEntry struct {
	entry     models.SessionEntry
	expiresAt time.Time // zero when the entry never expires
}

// MemoryOption configures a MemoryRegistry.
type MemoryOption func(*MemoryRegistry)

// WithTTL sets the entry lifetime. ttl <= 0 keeps entries forever.
func WithTTL(ttl time.Duration) MemoryOption {
	return func(r *MemoryRegistry) { r.ttl = ttl }
}

// WithClock sets the clock TTLs are measured on.
func WithClock(c ratelimit.Clock) MemoryOption {
	return func(r *MemoryRegistry) { r.clock = c }
}

// NewMemoryRegistry creates an empty registry.
func NewMemoryRegistry(opts ...MemoryOption) *MemoryRegistry {
	r := &MemoryRegistry{
		entries: make(map[string]memoryEntry),
		clock:   ratelimit.SystemClock{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *MemoryRegistry) Register(ctx context.Context, entry models.SessionEntry) error {
	e := memoryEntry{entry: entry}
	if r.ttl > 0 {
		e.expiresAt = r.clock.Now().Add(r.ttl)
	}
	r.mu.Lock()
	r.entries[entry.SourceID] = e
	r.mu.Unlock()
	return nil
}

func (r *MemoryRegistry) Get(ctx context.Context, sourceID string) (*models.SessionEntry, error) {
	now := r.clock.Now()
	r.mu.RLock()
	e, ok := r.entries[sourceID]
	r.mu.RUnlock()
	if !ok {
		return nil, notIndexed(sourceID)
	}
	if e.expired(now) {
		r.mu.Lock()
		if cur, ok := r.entries[sourceID]; ok && cur.expired(now) {
			delete(r.entries, sourceID)
		}
		r.mu.Unlock()
		return nil, notIndexed(sourceID)
	}
	out := e.entry
	return &out, nil
}

func (r *MemoryRegistry) IsReady(ctx context.Context, sourceID string) bool {
	_, err := r.Get(ctx, sourceID)
	return err == nil
}

func (r *MemoryRegistry) Evict(ctx context.Context, sourceID string) error {
	r.mu.Lock()
	delete(r.entries, sourceID)
	r.mu.Unlock()
	return nil
}

// Len counts live entries, pruning expired ones.
func (r *MemoryRegistry) Len(ctx context.Context) int {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.entries {
		if e.expired(now) {
			delete(r.entries, id)
		}
	}
	return len(r.entries)
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}
