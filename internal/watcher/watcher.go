// Package watcher keeps the index in step with a transcripts directory: creating, editing or
// removing a transcript file reconciles the source it belongs to.
package watcher

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hyperjump/kotoba/internal/transcript"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// Watcher watches one directory and calls onChange with the source id of every transcript
// file event. Events for the same source are debounced into a single call.
type Watcher struct {
	dir      string
	onChange func(sourceID string)
	debounce time.Duration
	watcher  *fsnotify.Watcher
	mu       sync.Mutex
	pending  map[string]*time.Timer // source id -> debounce timer
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	logger   *zap.Logger // optional; when set, logs debug events
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithDebounce sets how long a source must be quiet before onChange fires.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

// NewWatcher creates a watcher for dir. The directory is created on Start if missing.
func NewWatcher(dir string, onChange func(sourceID string), opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:      filepath.Clean(dir),
		onChange: onChange,
		debounce: defaultDebounce,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Dir returns the watched directory.
func (w *Watcher) Dir() string { return w.dir }

// Start starts the watcher. It runs until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.started {
		return nil
	}
	if err := os.MkdirAll(w.dir, 0755); err != nil {
		return err
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return err
	}
	w.watcher = fw
	w.started = true
	if w.logger != nil {
		w.logger.Debug("watcher starting", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))
	}
	go w.run(ctx, fw)
	return nil
}

func (w *Watcher) run(ctx context.Context, fw *fsnotify.Watcher) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-fw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			if err != nil && w.logger != nil {
				w.logger.Debug("watcher error", zap.Error(err))
			}
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if filepath.Dir(filepath.Clean(ev.Name)) != w.dir {
		return
	}
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	id, _, _, ok := transcript.SplitName(filepath.Base(ev.Name))
	if !ok {
		return
	}
	if w.logger != nil {
		w.logger.Debug("watcher event", zap.String("op", ev.Op.String()), zap.String("path", ev.Name), zap.String("source_id", id))
	}
	w.schedule(id)
}

func (w *Watcher) schedule(sourceID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.started {
		return
	}
	if t, ok := w.pending[sourceID]; ok {
		t.Stop()
	}
	w.pending[sourceID] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, sourceID)
		w.mu.Unlock()
		if w.logger != nil {
			w.logger.Debug("watcher reconciling source (debounced)", zap.String("source_id", sourceID))
		}
		if w.onChange != nil {
			w.onChange(sourceID)
		}
	})
}

// Sources lists the distinct source ids that have transcript files in the directory.
func (w *Watcher) Sources() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if id, _, _, ok := transcript.SplitName(e.Name()); ok && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

// SyncExisting calls onChange for every source already present in the directory. Call it
// after Start to index transcripts dropped in while the process was down.
func (w *Watcher) SyncExisting() error {
	ids, err := w.Sources()
	if err != nil {
		return err
	}
	if w.logger != nil {
		w.logger.Debug("watcher syncing existing sources", zap.Int("sources", len(ids)))
	}
	for _, id := range ids {
		if w.onChange != nil {
			w.onChange(id)
		}
	}
	return nil
}

// Stop stops the watcher and releases resources. Pending debounced calls are dropped.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.started {
		w.mu.Unlock()
		return
	}
	for id, t := range w.pending {
		t.Stop()
		delete(w.pending, id)
	}
	_ = w.watcher.Close()
	w.started = false
	w.mu.Unlock()
	w.stopOnce.Do(func() { close(w.done) })
}
