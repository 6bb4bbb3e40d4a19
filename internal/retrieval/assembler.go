// Package retrieval fetches the chunks nearest to a question and renders them as a
// timestamped context block for generation.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/hyperjump/kotoba/internal/embedding"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/session"
	"github.com/hyperjump/kotoba/internal/sourceid"
	"github.com/hyperjump/kotoba/internal/vector"
	"go.uber.org/zap"
)

// Context is the retrieved material for one question. Sources parallels Hits.
type Context struct {
	Text    string
	Sources []models.Source
	Hits    []models.Hit
}

// Assembler gates questions on the session registry, embeds them and queries the vector store.
type Assembler struct {
	registry session.Registry
	embedder embedding.Embedder
	store    vector.Store
	topK     int
	logger   *zap.Logger // optional
}

// AssemblerOption configures an Assembler.
type AssemblerOption func(*Assembler)

// WithTopK sets how many chunks are retrieved per question. k <= 0 uses vector.DefaultK.
func WithTopK(k int) AssemblerOption {
	return func(a *Assembler) { a.topK = k }
}

// WithLogger sets a logger for retrieval debug output.
func WithLogger(l *zap.Logger) AssemblerOption {
	return func(a *Assembler) { a.logger = l }
}

// NewAssembler creates an Assembler.
func NewAssembler(registry session.Registry, embedder embedding.Embedder, store vector.Store, opts ...AssemblerOption) *Assembler {
	a := &Assembler{
		registry: registry,
		embedder: embedder,
		store:    store,
		topK:     vector.DefaultK,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildContext retrieves the top-k chunks for question from sourceID's collection, in
// retrieval order.
func (a *Assembler) BuildContext(ctx context.Context, sourceID, question string) (*Context, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is empty", models.ErrInvalidInput)
	}
	if err := sourceid.Validate(sourceID); err != nil {
		return nil, err
	}
	if !a.registry.IsReady(ctx, sourceID) {
		return nil, fmt.Errorf("%w: %s", models.ErrSourceNotIndexed, sourceID)
	}

	qvec, err := a.embedder.Embed(ctx, question)
	if err != nil {
		return nil, embedError(ctx, err)
	}
	hits, err := a.store.Query(ctx, sourceID, qvec, a.topK)
	if err != nil {
		if errors.Is(err, models.ErrCollectionNotFound) {
			return nil, fmt.Errorf("%w: %w", models.ErrSourceNotIndexed, err)
		}
		return nil, err
	}
	if a.logger != nil {
		a.logger.Debug("retrieved chunks", zap.String("source_id", sourceID), zap.Int("hits", len(hits)))
	}
	text, sources := Render(hits)
	return &Context{Text: text, Sources: sources, Hits: hits}, nil
}

// Render formats hits as "[<whole seconds>s] <text>" blocks separated by a blank line and
// returns the unrounded start times as sources.
func Render(hits []models.Hit) (string, []models.Source) {
	parts := make([]string, len(hits))
	sources := make([]models.Source, len(hits))
	for i, h := range hits {
		parts[i] = fmt.Sprintf("[%ds] %s", int64(math.Floor(h.StartTime)), h.Text)
		sources[i] = models.Source{Timestamp: h.StartTime}
	}
	return strings.Join(parts, "\n\n"), sources
}

func embedError(ctx context.Context, err error) error {
	if ctx.Err() != nil || errors.Is(err, models.ErrCollaboratorUnavailable) || errors.Is(err, models.ErrDimensionMismatch) {
		return err
	}
	return fmt.Errorf("%w: embed question: %w", models.ErrCollaboratorUnavailable, err)
}
