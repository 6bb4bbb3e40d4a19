package models

import (
	"fmt"
	"strings"
)

// Source is citation metadata for one retrieved chunk.
type Source struct {
	Timestamp float64 `json:"timestamp"`
}

// Answer is the result of answering a question about an indexed source.
type Answer struct {
	Answer  string   `json:"answer"`
	Sources []Source `json:"sources"`
}

// IndexResult is the result of indexing a source.
type IndexResult struct {
	SourceID       string `json:"source_id"`
	CollectionName string `json:"collection_name"`
	ChunksCreated  int    `json:"chunks_created"`
}

// Question is a chat request against an indexed source.
type Question struct {
	SourceID string `json:"video_id"`
	Text     string `json:"question"`
}

// Validate trims the fields and returns ErrInvalidInput if either is empty.
func (q *Question) Validate() error {
	q.SourceID = strings.TrimSpace(q.SourceID)
	q.Text = strings.TrimSpace(q.Text)
	if q.SourceID == "" || q.Text == "" {
		return fmt.Errorf("%w: missing video_id or question", ErrInvalidInput)
	}
	return nil
}
