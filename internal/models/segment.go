// Package models defines core data structures for transcripts, chunks, collections, and answers.
package models

import "time"

// TimedSegment is one caption line of a transcript. Start is in seconds from the beginning
// of the source.
type TimedSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
}

// Chunk is a contiguous, possibly overlapping span of transcript words anchored to the
// start time of the segment that contributed its first fresh word.
type Chunk struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
}

// Record is a chunk as stored in a collection.
type Record struct {
	ID        string    `json:"id" db:"id"`
	Position  int       `json:"position" db:"position"`
	Text      string    `json:"text" db:"text"`
	StartTime float64   `json:"start_time" db:"start_time"`
	Vector    []float32 `json:"-" db:"-"`
}

// Collection is the set of embedded chunks belonging to one source.
type Collection struct {
	Name       string    `json:"name" db:"name"`
	SourceID   string    `json:"source_id" db:"source_id"`
	Dimensions int       `json:"dimensions" db:"dimensions"`
	ChunkCount int       `json:"chunk_count" db:"chunk_count"`
	Generation string    `json:"generation" db:"generation"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Hit is a single nearest-neighbor result. Distance is cosine distance (0 = identical direction).
type Hit struct {
	ID        string  `json:"id"`
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	Distance  float64 `json:"distance"`
}

// SessionEntry records that a source finished indexing and which collection serves it.
type SessionEntry struct {
	SourceID       string    `json:"source_id"`
	CollectionName string    `json:"collection_name"`
	TotalChunks    int       `json:"total_chunks"`
	IndexedAt      time.Time `json:"indexed_at"`
}
