package embedding

import (
	"fmt"
	"sync"

	"github.com/sugarme/tokenizer"
	"github.com/sugarme/tokenizer/pretrained"
)

// HFTokenizer wraps a Hugging Face tokenizer.json for ONNX models that need their real
// vocabulary.
type HFTokenizer struct {
	mu  sync.Mutex
	tok *tokenizer.Tokenizer
}

// NewHFTokenizer loads a tokenizer.json file.
func NewHFTokenizer(path string) (*HFTokenizer, error) {
	tok, err := pretrained.FromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load tokenizer %s: %w", path, err)
	}
	return &HFTokenizer{tok: tok}, nil
}

// Tokenize encodes text with special tokens, truncating and zero-padding to maxTokens.
// Encoding failures yield an all-padding input.
func (t *HFTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	t.mu.Lock()
	enc, err := t.tok.EncodeSingle(text, true)
	t.mu.Unlock()
	if err != nil || enc == nil {
		return inputIDs, attentionMask, tokenTypeIDs
	}
	ids := enc.GetIds()
	mask := enc.GetAttentionMask()
	types := enc.GetTypeIds()
	for i := 0; i < len(ids) && i < maxTokens; i++ {
		inputIDs[i] = int64(ids[i])
		if i < len(mask) {
			attentionMask[i] = int64(mask[i])
		} else {
			attentionMask[i] = 1
		}
		if i < len(types) {
			tokenTypeIDs[i] = int64(types[i])
		}
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// NewTokenizer returns an HFTokenizer when path is set, otherwise SimpleTokenizer.
func NewTokenizer(path string) (Tokenizer, error) {
	if path == "" {
		return &SimpleTokenizer{}, nil
	}
	return NewHFTokenizer(path)
}
