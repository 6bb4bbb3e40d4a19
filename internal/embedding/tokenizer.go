package embedding

import "strings"

// Tokenizer produces token IDs for BERT-style models (input_ids, attention_mask, token_type_ids).
type Tokenizer interface {
	Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64)
}

// SimpleTokenizer is a word-split tokenizer with hash-based token IDs (for testing or fallback).
type SimpleTokenizer struct{}

// Tokenize splits text into words and produces padded token IDs up to maxTokens.
func (t *SimpleTokenizer) Tokenize(text string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	words := SplitWords(text)
	if maxTokens <= 0 {
		maxTokens = 256
	}
	inputIDs = make([]int64, maxTokens)
	attentionMask = make([]int64, maxTokens)
	tokenTypeIDs = make([]int64, maxTokens)

	inputIDs[0] = 101 // [CLS]
	attentionMask[0] = 1

	pos := 1
	for _, word := range words {
		if pos >= maxTokens-1 {
			break
		}
		inputIDs[pos] = int64(HashString(word) % 30000)
		attentionMask[pos] = 1
		pos++
	}
	if pos < maxTokens {
		inputIDs[pos] = 102 // [SEP]
		attentionMask[pos] = 1
	}
	return inputIDs, attentionMask, tokenTypeIDs
}

// SplitWords splits text on whitespace and returns non-empty words.
func SplitWords(text string) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	return words
}

// HashString returns a deterministic hash for use as a simple token ID.
func HashString(s string) int {
	h := 0
	for _, c := range s {
		h = 31*h + int(c)
	}
	if h < 0 {
		h = -h
	}
	return h
}

// PackBatch tokenizes texts into row-major [len(texts), maxTokens] input buffers, one row per
// text, ready to back batched model input tensors.
func PackBatch(tok Tokenizer, texts []string, maxTokens int) (inputIDs, attentionMask, tokenTypeIDs []int64) {
	n := len(texts) * maxTokens
	inputIDs = make([]int64, n)
	attentionMask = make([]int64, n)
	tokenTypeIDs = make([]int64, n)
	for i, text := range texts {
		ids, mask, types := tok.Tokenize(text, maxTokens)
		off := i * maxTokens
		copy(inputIDs[off:off+maxTokens], ids)
		copy(attentionMask[off:off+maxTokens], mask)
		copy(tokenTypeIDs[off:off+maxTokens], types)
	}
	return inputIDs, attentionMask, tokenTypeIDs
}
