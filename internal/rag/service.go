// Package rag ties chunking, embedding, the vector store, the session registry and generation
// into the index and answer operations.
package rag

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperjump/kotoba/internal/generation"
	"github.com/hyperjump/kotoba/internal/indexer"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/retrieval"
	"github.com/hyperjump/kotoba/internal/session"
	"github.com/hyperjump/kotoba/internal/sourceid"
	"github.com/hyperjump/kotoba/internal/transcript"
	"github.com/hyperjump/kotoba/internal/vector"
	"github.com/hyperjump/kotoba/pkg/utils"
	"go.uber.org/zap"
)

// Service exposes Index, Process, Answer and Ready. At most one indexing run per source is in
// flight; a second concurrent run for the same source fails with ErrIndexingInProgress.
type Service struct {
	indexer   *indexer.Indexer
	assembler *retrieval.Assembler
	registry  session.Registry
	store     vector.Store
	generator generation.Generator
	provider  transcript.Provider // optional; required by Process
	budget    Budget
	logger    *zap.Logger // optional

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithProvider sets the transcript provider used by Process.
func WithProvider(p transcript.Provider) ServiceOption {
	return func(s *Service) { s.provider = p }
}

// WithBudget sets the indexing timeout policy.
func WithBudget(b Budget) ServiceOption {
	return func(s *Service) { s.budget = b }
}

// WithLogger sets a logger for indexing and answering events.
func WithLogger(l *zap.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// NewService creates a Service.
func NewService(
	idx *indexer.Indexer,
	assembler *retrieval.Assembler,
	registry session.Registry,
	store vector.Store,
	generator generation.Generator,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		indexer:   idx,
		assembler: assembler,
		registry:  registry,
		store:     store,
		generator: generator,
		inFlight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Index chunks, embeds and stores segments as sourceID's collection, replacing any previous
// one, then marks the source ready. Queries keep seeing the previous collection until the new
// one is published.
func (s *Service) Index(ctx context.Context, sourceID string, segments []models.TimedSegment) (*models.IndexResult, error) {
	if err := sourceid.Validate(sourceID); err != nil {
		return nil, err
	}
	release, err := s.acquire(sourceID)
	if err != nil {
		return nil, err
	}
	defer release()
	return s.index(ctx, sourceID, segments)
}

// Process resolves a URL or bare id, fetches its transcript and indexes it.
func (s *Service) Process(ctx context.Context, urlOrID string) (*models.IndexResult, error) {
	sourceID, err := sourceid.FromURL(urlOrID)
	if err != nil {
		return nil, err
	}
	if s.provider == nil {
		return nil, fmt.Errorf("%w: no transcript provider configured", models.ErrTranscriptUnavailable)
	}
	release, err := s.acquire(sourceID)
	if err != nil {
		return nil, err
	}
	defer release()

	segments, err := s.provider.Fetch(ctx, sourceID)
	if err != nil {
		return nil, fetchError(err)
	}
	if s.logger != nil {
		s.logger.Debug("transcript fetched", zap.String("source_id", sourceID), zap.Int("segments", len(segments)))
	}
	return s.index(ctx, sourceID, segments)
}

func (s *Service) index(ctx context.Context, sourceID string, segments []models.TimedSegment) (*models.IndexResult, error) {
	chunks, err := s.indexer.Chunk(segments)
	if err != nil {
		return nil, err
	}

	budget := s.budget.For(len(chunks))
	ictx := ctx
	if budget > 0 {
		var cancel context.CancelFunc
		ictx, cancel = context.WithTimeout(ctx, budget)
		defer cancel()
	}
	if s.logger != nil {
		s.logger.Debug("indexing source",
			zap.String("source_id", sourceID),
			zap.Int("chunks", len(chunks)),
			zap.Duration("budget", budget))
	}

	started := time.Now()
	coll, err := s.indexer.IndexChunks(ictx, sourceID, chunks)
	if err != nil {
		if ctx.Err() == nil && errors.Is(ictx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s after %s: %w", models.ErrIndexingTimeout, sourceID, budget, err)
		}
		return nil, err
	}

	entry := models.SessionEntry{
		SourceID:       sourceID,
		CollectionName: coll.Name,
		TotalChunks:    coll.ChunkCount,
		IndexedAt:      time.Now().UTC(),
	}
	if err := s.registry.Register(ctx, entry); err != nil {
		return nil, fmt.Errorf("register session: %w", err)
	}
	if s.logger != nil {
		s.logger.Info("source indexed",
			zap.String("source_id", sourceID),
			zap.String("collection", coll.Name),
			zap.Int("chunks", coll.ChunkCount),
			zap.Duration("took", time.Since(started)))
	}
	return &models.IndexResult{
		SourceID:       sourceID,
		CollectionName: coll.Name,
		ChunksCreated:  coll.ChunkCount,
	}, nil
}

// Answer retrieves context for question from sourceID's collection and asks the generator.
func (s *Service) Answer(ctx context.Context, sourceID, question string) (*models.Answer, error) {
	q := models.Question{SourceID: sourceID, Text: question}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	rc, err := s.assembler.BuildContext(ctx, q.SourceID, q.Text)
	if err != nil {
		return nil, err
	}
	if s.logger != nil {
		s.logger.Debug("answering question",
			zap.String("source_id", q.SourceID),
			zap.String("question", utils.Truncate(q.Text, 80)),
			zap.Int("context_chunks", len(rc.Hits)))
	}
	text, err := s.generator.Generate(ctx, generation.BuildPrompt(rc.Text, q.Text))
	if err != nil {
		if ctx.Err() == nil && !errors.Is(err, models.ErrCollaboratorUnavailable) {
			err = fmt.Errorf("%w: %w", models.ErrCollaboratorUnavailable, err)
		}
		return nil, err
	}
	return &models.Answer{Answer: text, Sources: rc.Sources}, nil
}

// Ready reports whether sourceID has a completed index.
func (s *Service) Ready(ctx context.Context, sourceID string) bool {
	return s.registry.IsReady(ctx, sourceID)
}

// Session returns the registry entry for sourceID.
func (s *Service) Session(ctx context.Context, sourceID string) (*models.SessionEntry, error) {
	if err := sourceid.Validate(sourceID); err != nil {
		return nil, err
	}
	return s.registry.Get(ctx, sourceID)
}

// Sessions returns the number of ready sources.
func (s *Service) Sessions(ctx context.Context) int {
	return s.registry.Len(ctx)
}

// Delete evicts sourceID from the registry and drops its collection. Deleting an unknown
// source is not an error.
func (s *Service) Delete(ctx context.Context, sourceID string) error {
	if err := sourceid.Validate(sourceID); err != nil {
		return err
	}
	release, err := s.acquire(sourceID)
	if err != nil {
		return err
	}
	defer release()
	if err := s.registry.Evict(ctx, sourceID); err != nil {
		return err
	}
	if err := s.indexer.Delete(ctx, sourceID); err != nil && !errors.Is(err, models.ErrCollectionNotFound) {
		return err
	}
	return nil
}

// Rehydrate registers every collection already in the store, so a durable store keeps its
// sources queryable across restarts. It returns the number of sources registered.
func (s *Service) Rehydrate(ctx context.Context) (int, error) {
	colls, err := s.store.Collections(ctx)
	if err != nil {
		return 0, fmt.Errorf("list collections: %w", err)
	}
	for _, c := range colls {
		entry := models.SessionEntry{
			SourceID:       c.SourceID,
			CollectionName: c.Name,
			TotalChunks:    c.ChunkCount,
			IndexedAt:      c.CreatedAt,
		}
		if err := s.registry.Register(ctx, entry); err != nil {
			return 0, fmt.Errorf("register %s: %w", c.SourceID, err)
		}
	}
	if s.logger != nil && len(colls) > 0 {
		s.logger.Info("sessions restored from store", zap.Int("sources", len(colls)))
	}
	return len(colls), nil
}

// acquire marks sourceID as being indexed and returns the function that clears the mark.
func (s *Service) acquire(sourceID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.inFlight[sourceID]; busy {
		return nil, fmt.Errorf("%w: %s", models.ErrIndexingInProgress, sourceID)
	}
	s.inFlight[sourceID] = struct{}{}
	return func() {
		s.mu.Lock()
		delete(s.inFlight, sourceID)
		s.mu.Unlock()
	}, nil
}

func fetchError(err error) error {
	switch {
	case errors.Is(err, models.ErrTranscriptUnavailable),
		errors.Is(err, models.ErrTranscriptDisabled),
		errors.Is(err, models.ErrInvalidInput),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%w: fetch transcript: %w", models.ErrCollaboratorUnavailable, err)
}
