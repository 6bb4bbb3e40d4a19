package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/transcript"
)

type recorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *recorder) add(id string) {
	r.mu.Lock()
	r.ids = append(r.ids, id)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.ids...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_DebouncesPerSource(t *testing.T) {
	dir := t.TempDir()
	rec := &recorder{}
	w := NewWatcher(dir, rec.add, WithDebounce(100*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	for _, name := range []string{"talk1.en.srt", "talk1.hi.srt", "talk1.en.srt", "notes.txt"} {
		if err := writeFile(filepath.Join(dir, name), "1\n00:00:00,000 --> 00:00:01,000\nhello\n"); err != nil {
			t.Fatal(err)
		}
	}
	waitFor(t, func() bool { return len(rec.snapshot()) >= 1 })
	time.Sleep(300 * time.Millisecond)

	got := rec.snapshot()
	if len(got) != 1 || got[0] != "talk1" {
		t.Errorf("callbacks = %v, want one for talk1", got)
	}
}

func TestWatcher_RemoveTriggersReconcile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "talk2.json")
	if err := writeFile(path, `[{"text":"hi","start":0}]`); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := NewWatcher(dir, rec.add, WithDebounce(50*time.Millisecond))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	waitFor(t, func() bool { return slices.Contains(rec.snapshot(), "talk2") })
}

func TestWatcher_SyncExisting(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.srt", "a.en.json", "a.hi.srt", "c.disabled", "ignore.xyz", "bad id.srt"} {
		if err := writeFile(filepath.Join(dir, name), "x"); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.srt"), 0755); err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := NewWatcher(dir, rec.add)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if err := w.SyncExisting(); err != nil {
		t.Fatal(err)
	}
	got := rec.snapshot()
	if want := []string{"a", "b", "c"}; !slices.Equal(got, want) {
		t.Errorf("synced sources = %v, want %v", got, want)
	}
}

func TestWatcher_Start_createsMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "transcripts", "incoming")
	w := NewWatcher(dir, nil)
	if err := w.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()
	if _, err := os.Stat(dir); err != nil {
		t.Errorf("directory should exist after Start: %v", err)
	}
	w.Stop()
	w.Stop()
}

type fakeService struct {
	mu        sync.Mutex
	results   map[string][]error // queued Process errors per id
	deleted   []string
	processed []string
}

func (f *fakeService) Process(ctx context.Context, id string) (*models.IndexResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, id)
	var err error
	if q := f.results[id]; len(q) > 0 {
		err, f.results[id] = q[0], q[1:]
	}
	if err != nil {
		return nil, err
	}
	return &models.IndexResult{SourceID: id, ChunksCreated: 1}, nil
}

func (f *fakeService) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeService) counts() (processed, deleted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.processed), len(f.deleted)
}

func TestReconciler(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantDeleted int
	}{
		{"indexed", nil, 0},
		{"unavailable drops", fmt.Errorf("%w: gone", models.ErrTranscriptUnavailable), 1},
		{"disabled drops", models.ErrTranscriptDisabled, 1},
		{"backend failure keeps", fmt.Errorf("%w: 503", models.ErrCollaboratorUnavailable), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{results: map[string][]error{"v1": {tt.err}}}
			NewReconciler(context.Background(), svc, nil).Reconcile("v1")
			processed, deleted := svc.counts()
			if processed != 1 || deleted != tt.wantDeleted {
				t.Errorf("processed=%d deleted=%d, want 1/%d", processed, deleted, tt.wantDeleted)
			}
		})
	}
}

func TestReconciler_RetriesBusySource(t *testing.T) {
	svc := &fakeService{results: map[string][]error{"v1": {models.ErrIndexingInProgress, nil}}}
	r := NewReconciler(context.Background(), svc, nil)
	r.retry = 10 * time.Millisecond
	r.Reconcile("v1")
	waitFor(t, func() bool { p, _ := svc.counts(); return p == 2 })
}

func TestReconciler_StopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	svc := &fakeService{}
	NewReconciler(ctx, svc, nil).Reconcile("v1")
	if p, _ := svc.counts(); p != 0 {
		t.Errorf("processed %d sources after cancel", p)
	}
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Fatal("context should be cancelled")
	}
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0600)
}

// fileService processes sources straight from a transcripts directory.
type fileService struct {
	fakeService
	provider *transcript.FileProvider
}

func (f *fileService) Process(ctx context.Context, id string) (*models.IndexResult, error) {
	f.fakeService.Process(ctx, id)
	if _, err := f.provider.Fetch(ctx, id); err != nil {
		return nil, err
	}
	return &models.IndexResult{SourceID: id, ChunksCreated: 1}, nil
}

func TestReconciler_KeepsIndexOnUnreadableTranscript(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"badtime.srt":   "1\n00:00:xx,000 --> 00:00:02,000\nhello\n",
		"badjson.json":  `[{"text": "cut off`,
		"truncated.srt": "",
	}
	for name, content := range files {
		if err := writeFile(filepath.Join(dir, name), content); err != nil {
			t.Fatal(err)
		}
	}
	svc := &fileService{provider: transcript.NewFileProvider(dir)}
	r := NewReconciler(context.Background(), svc, nil)
	for _, id := range []string{"badtime", "badjson", "truncated"} {
		r.Reconcile(id)
	}
	if processed, deleted := svc.counts(); processed != 3 || deleted != 0 {
		t.Errorf("processed=%d deleted=%d, want 3/0", processed, deleted)
	}

	r.Reconcile("gone")
	if _, deleted := svc.counts(); deleted != 1 {
		t.Errorf("missing transcript should drop the source, deleted=%d", deleted)
	}
}
