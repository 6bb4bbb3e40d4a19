package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hyperjump/kotoba/internal/models"
)

func TestFormatTimestamp(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "0:00"},
		{12.7, "0:12"},
		{75, "1:15"},
		{3725.2, "1:02:05"},
		{-3, "0:00"},
	}
	for _, tt := range tests {
		if got := FormatTimestamp(tt.in); got != tt.want {
			t.Errorf("FormatTimestamp(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestWriteAnswer(t *testing.T) {
	ans := &models.Answer{Answer: "It is 0.01.", Sources: []models.Source{{Timestamp: 75}, {Timestamp: 3}}}

	var text bytes.Buffer
	if err := WriteAnswer(&text, ans, OutputText); err != nil {
		t.Fatal(err)
	}
	out := text.String()
	if !strings.HasPrefix(out, "It is 0.01.\n") || !strings.Contains(out, "1. 1:15") || !strings.Contains(out, "2. 0:03") {
		t.Errorf("text output = %q", out)
	}

	var js bytes.Buffer
	if err := WriteAnswer(&js, ans, OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded models.Answer
	if err := json.Unmarshal(js.Bytes(), &decoded); err != nil {
		t.Fatalf("json output invalid: %v", err)
	}
	if decoded.Answer != ans.Answer || len(decoded.Sources) != 2 {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestWriteSession(t *testing.T) {
	var buf bytes.Buffer
	_ = WriteSession(&buf, "v1", nil, OutputText)
	if buf.String() != "v1: not indexed\n" {
		t.Errorf("not indexed output = %q", buf.String())
	}
	buf.Reset()
	_ = WriteSession(&buf, "v1", &models.SessionEntry{CollectionName: "video_v1", TotalChunks: 4}, OutputText)
	if !strings.Contains(buf.String(), "ready (4 chunks in video_v1)") {
		t.Errorf("ready output = %q", buf.String())
	}
}

func TestClient(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		var q models.Question
		_ = json.NewDecoder(r.Body).Decode(&q)
		if q.SourceID != "v1" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"source not indexed: ` + q.SourceID + `"}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"answer":"yes","sources":[{"timestamp":4.5}]}`))
	})
	mux.HandleFunc("/api/sessions/", func(w http.ResponseWriter, r *http.Request) {
		ready := strings.HasSuffix(r.URL.Path, "/v1")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"source_id": "v1", "ready": ready, "collection_name": "video_v1", "total_chunks": 3})
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	c := NewClient(ts.URL+"/", 5*time.Second)
	ctx := context.Background()
	if !c.Reachable(ctx) {
		t.Fatal("server should be reachable")
	}
	ans, err := c.Ask(ctx, "v1", "ok?")
	if err != nil || ans.Answer != "yes" || len(ans.Sources) != 1 || ans.Sources[0].Timestamp != 4.5 {
		t.Fatalf("Ask = %+v, %v", ans, err)
	}
	_, err = c.Ask(ctx, "v2", "ok?")
	var se *StatusError
	if !errors.As(err, &se) || se.Code != http.StatusBadRequest || !strings.Contains(se.Message, "not indexed") {
		t.Errorf("Ask unknown source: err = %v", err)
	}
	entry, err := c.Session(ctx, "v1")
	if err != nil || entry == nil || entry.TotalChunks != 3 {
		t.Errorf("Session(v1) = %+v, %v", entry, err)
	}
	entry, err = c.Session(ctx, "v2")
	if err != nil || entry != nil {
		t.Errorf("Session(v2) = %+v, %v", entry, err)
	}
}

func TestClient_Unreachable(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", time.Second)
	if c.Reachable(context.Background()) {
		t.Error("closed port should not be reachable")
	}
}
