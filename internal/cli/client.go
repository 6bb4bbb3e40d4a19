package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/sourceid"
)

// Client talks to a running kotoba server.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for the server at baseURL. A zero timeout means none.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Reachable reports whether the server answers its health check.
func (c *Client) Reachable(ctx context.Context) bool {
	var out map[string]string
	return c.do(ctx, http.MethodGet, "/api/health", nil, &out) == nil && out["status"] == "healthy"
}

// Process asks the server to fetch and index a source by URL or id.
func (c *Client) Process(ctx context.Context, urlOrID string) (*models.IndexResult, error) {
	var out struct {
		VideoID       string `json:"video_id"`
		ChunksCreated int    `json:"chunks_created"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/process-video", map[string]string{"url": urlOrID}, &out); err != nil {
		return nil, err
	}
	return &models.IndexResult{
		SourceID:       out.VideoID,
		CollectionName: sourceid.CollectionName(out.VideoID),
		ChunksCreated:  out.ChunksCreated,
	}, nil
}

// Ask sends a question about sourceID.
func (c *Client) Ask(ctx context.Context, sourceID, question string) (*models.Answer, error) {
	var out models.Answer
	q := models.Question{SourceID: sourceID, Text: question}
	if err := c.do(ctx, http.MethodPost, "/api/chat", q, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Session returns the registry entry for sourceID, or nil when it is not indexed.
func (c *Client) Session(ctx context.Context, sourceID string) (*models.SessionEntry, error) {
	var out struct {
		SourceID       string `json:"source_id"`
		Ready          bool   `json:"ready"`
		CollectionName string `json:"collection_name"`
		TotalChunks    int    `json:"total_chunks"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/sessions/"+url.PathEscape(sourceID), nil, &out); err != nil {
		return nil, err
	}
	if !out.Ready {
		return nil, nil
	}
	return &models.SessionEntry{SourceID: out.SourceID, CollectionName: out.CollectionName, TotalChunks: out.TotalChunks}, nil
}

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &StatusError{Code: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
