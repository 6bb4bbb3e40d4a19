// Package gemini is a small REST client for the Gemini embedContent, batchEmbedContents,
// and generateContent endpoints.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/ratelimit"
	"go.uber.org/zap"
)

const (
	DefaultBaseURL      = "https://generativelanguage.googleapis.com/v1beta"
	defaultMaxRetries   = 5
	initialBackoff      = 500 * time.Millisecond
	maxBackoff          = 30 * time.Second
	defaultTimeout      = 120 * time.Second
	maxIdleConns        = 100
	idleConnTimeout     = 90 * time.Second
	tlsHandshakeTimeout = 10 * time.Second
)

// Client is a Gemini API client with retries and per-endpoint rate limiting.
type Client struct {
	httpClient      *http.Client
	baseURL         string
	apiKey          string
	embedLimiter    *ratelimit.Limiter
	generateLimiter *ratelimit.Limiter
	clock           ratelimit.Clock
	maxRetries      int
	logger          *zap.Logger // optional

	usageMu           sync.Mutex
	totalPromptTokens int64
	totalOutputTokens int64
	totalEmbedChars   int64
	generateCalls     int64
	embedCalls        int64
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL (used by tests).
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithEmbedLimiter rate-limits embedContent and batchEmbedContents requests.
func WithEmbedLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.embedLimiter = l }
}

// WithGenerateLimiter rate-limits generateContent requests.
func WithGenerateLimiter(l *ratelimit.Limiter) Option {
	return func(c *Client) { c.generateLimiter = l }
}

// WithClock sets the clock used for retry backoff.
func WithClock(clock ratelimit.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithMaxRetries sets how many times a retryable failure is retried.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// WithLogger sets a logger for retry and usage debug output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client authenticating with apiKey.
func NewClient(apiKey string, opts ...Option) *Client {
	transport := &http.Transport{
		MaxIdleConns:        maxIdleConns,
		MaxIdleConnsPerHost: maxIdleConns,
		IdleConnTimeout:     idleConnTimeout,
		TLSHandshakeTimeout: tlsHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}
	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   defaultTimeout,
		},
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		clock:      ratelimit.SystemClock{},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) buildRequest(ctx context.Context, endpoint string, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/%s", c.baseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)
	return req, nil
}

// apiResponse is implemented by every response type that can carry an error body.
type apiResponse interface {
	apiError() *APIError
}

func (r *GenerateContentResponse) apiError() *APIError    { return r.Error }
func (r *EmbedContentResponse) apiError() *APIError       { return r.Error }
func (r *BatchEmbedContentsResponse) apiError() *APIError { return r.Error }

// do POSTs body to endpoint, retrying retryable failures with backoff, and decodes into out.
// Every attempt first waits on limiter.
func (c *Client) do(ctx context.Context, limiter *ratelimit.Limiter, endpoint string, body []byte, out apiResponse) error {
	var (
		lastErr   error
		throttled bool
	)
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := calculateBackoff(attempt)
			if throttled {
				limiter.Penalize(backoff)
			}
			if c.logger != nil {
				c.logger.Debug("gemini retrying", zap.String("endpoint", endpoint), zap.Int("attempt", attempt), zap.Duration("backoff", backoff), zap.Error(lastErr))
			}
			if err := c.clock.Sleep(ctx, backoff); err != nil {
				return err
			}
		}
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := c.buildRequest(ctx, endpoint, body)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr, throttled = err, false
			continue
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr, throttled = err, false
			continue
		}
		if isRetryableStatus(resp.StatusCode) {
			lastErr = statusError(resp.StatusCode, respBody)
			throttled = resp.StatusCode == http.StatusTooManyRequests
			continue
		}
		if err := json.Unmarshal(respBody, out); err != nil {
			if resp.StatusCode >= 300 {
				return statusError(resp.StatusCode, respBody)
			}
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if apiErr := out.apiError(); apiErr != nil {
			if isRetryableStatus(apiErr.Code) {
				lastErr = apiErr
				throttled = apiErr.Code == http.StatusTooManyRequests
				continue
			}
			return apiErr
		}
		if resp.StatusCode >= 300 {
			return statusError(resp.StatusCode, respBody)
		}
		return nil
	}
	if throttled {
		return fmt.Errorf("max retries exceeded: %w: %v", models.ErrRateLimited, lastErr)
	}
	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func statusError(code int, body []byte) error {
	var wrapper struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(body, &wrapper); err == nil && wrapper.Error != nil {
		if wrapper.Error.Code == 0 {
			wrapper.Error.Code = code
		}
		return wrapper.Error
	}
	return fmt.Errorf("status %d", code)
}

// GenerateContent calls the Gemini generateContent API
func (c *Client) GenerateContent(ctx context.Context, model string, req *GenerateContentRequest) (*GenerateContentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s:generateContent", qualifiedModel(model))
	var result GenerateContentResponse
	if err := c.do(ctx, c.generateLimiter, endpoint, body, &result); err != nil {
		return nil, err
	}
	c.recordGenerateUsage(result.UsageMetadata)
	return &result, nil
}

// EmbedContent calls the Gemini embedContent API
func (c *Client) EmbedContent(ctx context.Context, req *EmbedContentRequest) (*EmbedContentResponse, error) {
	req.Model = qualifiedModel(req.Model)
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s:embedContent", req.Model)
	var result EmbedContentResponse
	if err := c.do(ctx, c.embedLimiter, endpoint, body, &result); err != nil {
		return nil, err
	}
	if result.Embedding == nil {
		return nil, errors.New("empty embedding response")
	}
	c.recordEmbedUsage(contentChars(req.Content))
	return &result, nil
}

// BatchEmbedContents calls the Gemini batchEmbedContents API. One call counts as one request
// against the embed limiter regardless of how many texts it carries.
func (c *Client) BatchEmbedContents(ctx context.Context, model string, requests []EmbedContentRequest) (*BatchEmbedContentsResponse, error) {
	fullModel := qualifiedModel(model)
	chars := 0
	for i := range requests {
		requests[i].Model = fullModel
		chars += contentChars(requests[i].Content)
	}
	body, err := json.Marshal(BatchEmbedContentsRequest{Requests: requests})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	endpoint := fmt.Sprintf("%s:batchEmbedContents", fullModel)
	var result BatchEmbedContentsResponse
	if err := c.do(ctx, c.embedLimiter, endpoint, body, &result); err != nil {
		return nil, err
	}
	if len(result.Embeddings) != len(requests) {
		return nil, fmt.Errorf("batch embed returned %d embeddings for %d inputs", len(result.Embeddings), len(requests))
	}
	c.recordEmbedUsage(chars)
	return &result, nil
}

func qualifiedModel(model string) string {
	if strings.HasPrefix(model, "models/") {
		return model
	}
	return "models/" + model
}

func contentChars(content Content) int {
	n := 0
	for _, p := range content.Parts {
		n += len(p.Text)
	}
	return n
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func calculateBackoff(attempt int) time.Duration {
	backoff := initialBackoff << (attempt - 1)
	if backoff > maxBackoff || backoff <= 0 {
		backoff = maxBackoff
	}
	// Jitter of up to 20%.
	jitter := time.Duration(rand.Int63n(int64(backoff)/5 + 1))
	return backoff + jitter
}

func (c *Client) recordGenerateUsage(u *UsageMetadata) {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()
	c.generateCalls++
	if u != nil {
		c.totalPromptTokens += int64(u.PromptTokenCount)
		c.totalOutputTokens += int64(u.CandidatesTokenCount)
	}
}

func (c *Client) recordEmbedUsage(chars int) {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()
	c.embedCalls++
	c.totalEmbedChars += int64(chars)
}

// Usage is a snapshot of request counters.
type Usage struct {
	GenerateCalls     int64 `json:"generate_calls"`
	EmbedCalls        int64 `json:"embed_calls"`
	TotalPromptTokens int64 `json:"total_prompt_tokens"`
	TotalOutputTokens int64 `json:"total_output_tokens"`
	TotalEmbedChars   int64 `json:"total_embed_chars"`
}

// Usage returns the request counters accumulated so far.
func (c *Client) Usage() Usage {
	c.usageMu.Lock()
	defer c.usageMu.Unlock()
	return Usage{
		GenerateCalls:     c.generateCalls,
		EmbedCalls:        c.embedCalls,
		TotalPromptTokens: c.totalPromptTokens,
		TotalOutputTokens: c.totalOutputTokens,
		TotalEmbedChars:   c.totalEmbedChars,
	}
}
