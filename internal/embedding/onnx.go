//go:build cgo
// +build cgo

package embedding

import (
	"context"
	"fmt"
	"sync"

	"github.com/hyperjump/kotoba/pkg/utils"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXEmbedder uses ONNX Runtime to produce embeddings. It requires CGO and the onnxruntime shared library.
// Texts are embedded in batches: each inference call takes [n, maxTokens] inputs and yields a
// pooled [n, dimensions] "output" tensor.
type ONNXEmbedder struct {
	session    *ort.DynamicAdvancedSession
	dimensions int
	maxTokens  int
	batchSize  int
	tokenizer  Tokenizer
	mu         sync.Mutex
}

// NewONNXEmbedder creates an ONNX embedder for a sentence-embedding model with a pooled
// "output" tensor. A nil tokenizer falls back to SimpleTokenizer. InitializeEnvironment is
// called if not already done.
func NewONNXEmbedder(modelPath string, dimensions, maxTokens int, tokenizer Tokenizer, opts ...ONNXOption) (*ONNXEmbedder, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("onnx embedder: dimensions must be positive, got %d", dimensions)
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}
	if tokenizer == nil {
		tokenizer = &SimpleTokenizer{}
	}
	settings := newONNXSettings(opts)
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"output"},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &ONNXEmbedder{
		session:    session,
		dimensions: dimensions,
		maxTokens:  maxTokens,
		batchSize:  settings.batchSize,
		tokenizer:  tokenizer,
	}, nil
}

// Embed returns the L2-normalized embedding for text.
func (e *ONNXEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in sub-batches of the configured size, one inference call each.
func (e *ONNXEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		end := min(start+e.batchSize, len(texts))
		vecs, err := e.run(texts[start:end])
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, vecs...)
	}
	return embeddings, nil
}

func (e *ONNXEmbedder) run(texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, fmt.Errorf("onnx embedder is closed")
	}

	n := int64(len(texts))
	inputIDs, attentionMask, tokenTypeIDs := PackBatch(e.tokenizer, texts, e.maxTokens)
	shape := ort.NewShape(n, int64(e.maxTokens))

	inputIDsTensor, err := ort.NewTensor(shape, inputIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create input_ids tensor: %w", err)
	}
	defer inputIDsTensor.Destroy()
	attentionMaskTensor, err := ort.NewTensor(shape, attentionMask)
	if err != nil {
		return nil, fmt.Errorf("failed to create attention_mask tensor: %w", err)
	}
	defer attentionMaskTensor.Destroy()
	tokenTypeIDsTensor, err := ort.NewTensor(shape, tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to create token_type_ids tensor: %w", err)
	}
	defer tokenTypeIDsTensor.Destroy()
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(n, int64(e.dimensions)))
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer outputTensor.Destroy()

	if err := e.session.Run(
		[]ort.Value{inputIDsTensor, attentionMaskTensor, tokenTypeIDsTensor},
		[]ort.Value{outputTensor},
	); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	data := outputTensor.GetData()
	out := make([][]float32, len(texts))
	for i := range out {
		vec := make([]float32, e.dimensions)
		copy(vec, data[i*e.dimensions:(i+1)*e.dimensions])
		utils.NormalizeL2(vec)
		out[i] = vec
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *ONNXEmbedder) Dimensions() int {
	return e.dimensions
}

// Close destroys the session.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

// ONNXAvailable reports whether this build can run ONNX models.
func ONNXAvailable() bool { return true }
