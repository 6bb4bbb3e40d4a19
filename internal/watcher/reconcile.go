package watcher

import (
	"context"
	"errors"
	"time"

	"github.com/hyperjump/kotoba/internal/models"
	"go.uber.org/zap"
)

// Service is the indexing surface the watcher drives.
type Service interface {
	Process(ctx context.Context, urlOrID string) (*models.IndexResult, error)
	Delete(ctx context.Context, sourceID string) error
}

// Reconciler brings one source's index in line with its transcript files: it re-indexes when a
// transcript is available and drops the source when none is (or captions are disabled). A file
// that fails to parse leaves the current index in place.
type Reconciler struct {
	ctx    context.Context
	svc    Service
	retry  time.Duration
	logger *zap.Logger
}

// NewReconciler creates a Reconciler whose work stops when ctx is cancelled.
func NewReconciler(ctx context.Context, svc Service, logger *zap.Logger) *Reconciler {
	return &Reconciler{ctx: ctx, svc: svc, retry: 2 * time.Second, logger: logger}
}

// Reconcile re-indexes or drops sourceID. A source already being indexed is retried later so the
// latest file contents win.
func (r *Reconciler) Reconcile(sourceID string) {
	if r.ctx.Err() != nil {
		return
	}
	res, err := r.svc.Process(r.ctx, sourceID)
	switch {
	case err == nil:
		if r.logger != nil {
			r.logger.Info("transcript indexed", zap.String("source_id", res.SourceID), zap.Int("chunks", res.ChunksCreated))
		}
	case errors.Is(err, models.ErrTranscriptUnavailable), errors.Is(err, models.ErrTranscriptDisabled):
		if derr := r.svc.Delete(r.ctx, sourceID); derr != nil {
			if r.logger != nil {
				r.logger.Warn("failed to drop source", zap.String("source_id", sourceID), zap.Error(derr))
			}
			return
		}
		if r.logger != nil {
			r.logger.Info("source dropped", zap.String("source_id", sourceID), zap.String("reason", err.Error()))
		}
	case errors.Is(err, models.ErrIndexingInProgress):
		if r.logger != nil {
			r.logger.Debug("source busy, retrying", zap.String("source_id", sourceID), zap.Duration("after", r.retry))
		}
		time.AfterFunc(r.retry, func() { r.Reconcile(sourceID) })
	case errors.Is(err, context.Canceled):
	default:
		if r.logger != nil {
			r.logger.Warn("transcript indexing failed", zap.String("source_id", sourceID), zap.Error(err))
		}
	}
}
