package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperjump/kotoba/internal/config"
	"github.com/hyperjump/kotoba/internal/embedding"
	"github.com/hyperjump/kotoba/internal/gemini"
	"github.com/hyperjump/kotoba/internal/generation"
	"github.com/hyperjump/kotoba/internal/indexer"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/rag"
	"github.com/hyperjump/kotoba/internal/retrieval"
	"github.com/hyperjump/kotoba/internal/session"
	"github.com/hyperjump/kotoba/internal/vector"
	"go.uber.org/zap"
)

type stubProvider map[string][]models.TimedSegment

func (p stubProvider) Fetch(ctx context.Context, sourceID string) ([]models.TimedSegment, error) {
	if sourceID == "nocaptions" {
		return nil, fmt.Errorf("%w: transcripts are disabled for %s", models.ErrTranscriptDisabled, sourceID)
	}
	segs, ok := p[sourceID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTranscriptUnavailable, sourceID)
	}
	return segs, nil
}

var talk = []models.TimedSegment{
	{Text: "welcome to the talk about vector search", Start: 0},
	{Text: "cosine distance ranks nearby chunks first", Start: 6.5},
	{Text: "then the model writes the answer", Start: 14},
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	emb := embedding.NewHashEmbedder(16)
	chunker, err := indexer.NewChunker(5, 1)
	if err != nil {
		t.Fatal(err)
	}
	store := vector.NewMemoryStore(16)
	t.Cleanup(func() { _ = store.Close() })
	reg := session.NewMemoryRegistry()
	svc := rag.NewService(
		indexer.NewIndexer(chunker, emb, store),
		retrieval.NewAssembler(reg, emb, store),
		reg, store, generation.EchoGenerator{},
		rag.WithProvider(stubProvider{"dQw4w9WgXcQ": talk}),
	)
	info := Info{
		StoreKind:        "memory",
		EmbeddingBackend: "hash",
		Dimensions:       16,
		ChunkSize:        5,
		ChunkOverlap:     1,
		DiskUsage:        func() (int64, error) { return 4096, nil },
		GeminiUsage:      func() gemini.Usage { return gemini.Usage{EmbedCalls: 3} },
	}
	return NewServer(svc, &config.ServerConfig{Port: 5000}, info, zap.NewNop())
}

func do(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	r := httptest.NewRequest(method, path, &buf)
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(out); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodGet, "/api/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out map[string]string
	decode(t, w, &out)
	if out["status"] != "healthy" {
		t.Errorf("body = %v", out)
	}
	if w.Header().Get("X-Request-Id") == "" {
		t.Error("missing X-Request-Id header")
	}
}

func TestHandleProcessVideo(t *testing.T) {
	h := newTestServer(t).Handler()
	w := do(t, h, http.MethodPost, "/api/process-video", map[string]string{"url": "https://youtu.be/dQw4w9WgXcQ"})
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body: %s", w.Code, w.Body.String())
	}
	var out processResponse
	decode(t, w, &out)
	if !out.Success || out.VideoID != "dQw4w9WgXcQ" || out.ChunksCreated == 0 || out.Message == "" {
		t.Errorf("body = %+v", out)
	}
}

func TestHandleProcessVideo_Errors(t *testing.T) {
	h := newTestServer(t).Handler()
	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{"no url", map[string]string{}, http.StatusBadRequest},
		{"invalid url", map[string]string{"url": "https://example.com/x?y=z"}, http.StatusBadRequest},
		{"no transcript", map[string]string{"url": "missing"}, http.StatusBadRequest},
		{"disabled", map[string]string{"video_id": "nocaptions"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(t, h, http.MethodPost, "/api/process-video", tt.body)
			if w.Code != tt.want {
				t.Fatalf("status: got %d, want %d, body: %s", w.Code, tt.want, w.Body.String())
			}
			var out map[string]string
			decode(t, w, &out)
			if out["error"] == "" {
				t.Errorf("missing error message: %v", out)
			}
		})
	}
}

func TestHandleIndexAndChat(t *testing.T) {
	h := newTestServer(t).Handler()

	w := do(t, h, http.MethodPost, "/api/chat", map[string]string{"video_id": "talk1", "question": "what ranks chunks?"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("chat before index: got %d", w.Code)
	}

	w = do(t, h, http.MethodPost, "/api/index", indexRequest{SourceID: "talk1", Segments: talk})
	if w.Code != http.StatusOK {
		t.Fatalf("index status: got %d, body: %s", w.Code, w.Body.String())
	}
	var idx indexResponse
	decode(t, w, &idx)
	if !idx.Success || idx.SourceID != "talk1" || idx.ChunksCreated == 0 {
		t.Errorf("index body = %+v", idx)
	}

	w = do(t, h, http.MethodPost, "/api/chat", map[string]string{"video_id": "talk1", "question": "what ranks chunks?"})
	if w.Code != http.StatusOK {
		t.Fatalf("chat status: got %d, body: %s", w.Code, w.Body.String())
	}
	var chat chatResponse
	decode(t, w, &chat)
	if !chat.Success || chat.Answer == "" || len(chat.Sources) == 0 {
		t.Errorf("chat body = %+v", chat)
	}

	w = do(t, h, http.MethodPost, "/api/chat", map[string]string{"video_id": "talk1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("chat without question: got %d", w.Code)
	}
}

func TestHandleSessions(t *testing.T) {
	h := newTestServer(t).Handler()

	w := do(t, h, http.MethodGet, "/api/sessions/talk1", nil)
	var out sessionResponse
	decode(t, w, &out)
	if w.Code != http.StatusOK || out.Ready {
		t.Fatalf("before index: %d %+v", w.Code, out)
	}

	do(t, h, http.MethodPost, "/api/index", indexRequest{SourceID: "talk1", Segments: talk})
	w = do(t, h, http.MethodGet, "/api/sessions/talk1", nil)
	out = sessionResponse{}
	decode(t, w, &out)
	if !out.Ready || out.CollectionName != "video_talk1" || out.TotalChunks == 0 {
		t.Errorf("after index: %+v", out)
	}

	w = do(t, h, http.MethodDelete, "/api/sessions/talk1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: got %d", w.Code)
	}
	w = do(t, h, http.MethodGet, "/api/sessions/talk1", nil)
	out = sessionResponse{}
	decode(t, w, &out)
	if out.Ready {
		t.Error("session still ready after delete")
	}

	w = do(t, h, http.MethodGet, "/api/sessions/bad%20id", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid id: got %d", w.Code)
	}
}

func TestHandleStatus(t *testing.T) {
	h := newTestServer(t).Handler()
	do(t, h, http.MethodPost, "/api/index", indexRequest{SourceID: "talk1", Segments: talk})
	w := do(t, h, http.MethodGet, "/api/status", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var out struct {
		Sessions       int            `json:"sessions"`
		DiskUsageBytes int64          `json:"disk_usage_bytes"`
		Config         map[string]any `json:"config"`
		GeminiUsage    *gemini.Usage  `json:"gemini_usage"`
	}
	decode(t, w, &out)
	if out.Sessions != 1 || out.DiskUsageBytes != 4096 {
		t.Errorf("body = %+v", out)
	}
	if out.Config["vector_store"] != "memory" || out.Config["embedding_dimensions"] != float64(16) ||
		out.Config["chunk_size"] != float64(5) || out.Config["chunk_overlap"] != float64(1) {
		t.Errorf("config = %v", out.Config)
	}
	if out.GeminiUsage == nil || out.GeminiUsage.EmbedCalls != 3 {
		t.Errorf("gemini_usage = %+v", out.GeminiUsage)
	}
}

func TestHandleChat_InvalidBody(t *testing.T) {
	h := newTestServer(t).Handler()
	r := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", w.Code)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("x: %w", models.ErrInvalidInput), http.StatusBadRequest},
		{models.ErrSourceNotIndexed, http.StatusBadRequest},
		{models.ErrTranscriptUnavailable, http.StatusBadRequest},
		{models.ErrTranscriptDisabled, http.StatusBadRequest},
		{models.ErrIndexingInProgress, http.StatusConflict},
		{fmt.Errorf("%w: slow", models.ErrIndexingTimeout), http.StatusGatewayTimeout},
		{fmt.Errorf("%w: %w", models.ErrCollaboratorUnavailable, models.ErrRateLimited), http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
