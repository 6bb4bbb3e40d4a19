package models

import "errors"

// Errors shared across packages. Callers match them with errors.Is; producers wrap them with
// context via fmt.Errorf("...: %w", err).
var (
	// ErrInvalidInput is returned for a malformed source identifier, empty question, bad
	// segments, or an invalid chunking configuration. No side effects have happened.
	ErrInvalidInput = errors.New("invalid input")
	// ErrCollaboratorUnavailable wraps failures of the transcript, embedding, or generation backend.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrSourceNotIndexed is returned when a source is queried before indexing completed.
	ErrSourceNotIndexed = errors.New("source not indexed")
	// ErrCollectionNotFound is returned by a vector store for an unknown or deleted collection.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrIndexingInProgress is returned when the same source is already being indexed.
	ErrIndexingInProgress = errors.New("indexing in progress")
	// ErrIndexingTimeout is returned when indexing exceeded its time budget.
	ErrIndexingTimeout = errors.New("indexing timeout")
	// ErrDimensionMismatch is a fatal configuration error: stored and query vectors differ in length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrTranscriptUnavailable is returned when no transcript exists for a source.
	ErrTranscriptUnavailable = errors.New("transcript unavailable")
	// ErrTranscriptDisabled is returned when transcripts are disabled for a source.
	ErrTranscriptDisabled = errors.New("transcripts disabled")
	// ErrRateLimited is returned when a remote backend keeps throttling after retries.
	ErrRateLimited = errors.New("rate limited")
)
