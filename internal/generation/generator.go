package generation

import (
	"context"
	"fmt"
	"strings"

	"github.com/hyperjump/kotoba/internal/gemini"
	"github.com/hyperjump/kotoba/internal/models"
	"go.uber.org/zap"
)

// Generator turns a prompt into answer text.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Backend kinds accepted by configuration.
const (
	KindGemini = "gemini"
	KindEcho   = "echo"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.5-flash"

// GeminiGenerator answers prompts with a Gemini model.
type GeminiGenerator struct {
	client      *gemini.Client
	model       string
	temperature *float64
	maxTokens   int
	logger      *zap.Logger // optional
}

// GeminiOption configures a GeminiGenerator.
type GeminiOption func(*GeminiGenerator)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) GeminiOption {
	return func(g *GeminiGenerator) { g.temperature = &t }
}

// WithMaxOutputTokens caps the answer length.
func WithMaxOutputTokens(n int) GeminiOption {
	return func(g *GeminiGenerator) { g.maxTokens = n }
}

// WithLogger sets a logger for generation debug output.
func WithLogger(l *zap.Logger) GeminiOption {
	return func(g *GeminiGenerator) { g.logger = l }
}

// NewGeminiGenerator creates a generator for model (DefaultModel when empty).
func NewGeminiGenerator(client *gemini.Client, model string, opts ...GeminiOption) *GeminiGenerator {
	if model == "" {
		model = DefaultModel
	}
	g := &GeminiGenerator{client: client, model: model}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate sends prompt as a single user turn and returns the first candidate's text.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	req := &gemini.GenerateContentRequest{
		Contents: []gemini.Content{{Role: "user", Parts: []gemini.Part{{Text: prompt}}}},
	}
	if g.temperature != nil || g.maxTokens > 0 {
		req.GenerationConfig = &gemini.GenerationConfig{Temperature: g.temperature, MaxOutputTokens: g.maxTokens}
	}
	resp, err := g.client.GenerateContent(ctx, g.model, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: gemini generation: %w", models.ErrCollaboratorUnavailable, err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked: %s", models.ErrCollaboratorUnavailable, resp.PromptFeedback.BlockReason)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("%w: gemini returned no text", models.ErrCollaboratorUnavailable)
	}
	if g.logger != nil && resp.UsageMetadata != nil {
		g.logger.Debug("generated answer",
			zap.String("model", g.model),
			zap.Int("prompt_tokens", resp.UsageMetadata.PromptTokenCount),
			zap.Int("output_tokens", resp.UsageMetadata.CandidatesTokenCount))
	}
	return text, nil
}

// EchoGenerator answers with the retrieved context itself. It needs no API key and is used for
// offline runs.
type EchoGenerator struct{}

// Generate returns the context block of prompt.
func (EchoGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	block := strings.TrimSpace(contextOf(prompt))
	if block == "" {
		return "No relevant passages were found.", nil
	}
	return "Most relevant passages:\n\n" + block, nil
}
