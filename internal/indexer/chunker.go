// Package indexer splits transcripts into timestamped chunks and builds per-source collections.
package indexer

import (
	"fmt"
	"math"
	"strings"

	"github.com/hyperjump/kotoba/internal/models"
)

// Default chunking parameters, in words.
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 100
)

// Chunker splits timed segments into overlapping word-based chunks.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

// NewChunker creates a chunker with the given size and overlap (in words). The overlap must
// be smaller than the size, otherwise chunking would never make progress.
func NewChunker(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidInput, chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", models.ErrInvalidInput, chunkSize, chunkOverlap)
	}
	return &Chunker{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
	}, nil
}

// ChunkSize returns the chunk size in words.
func (c *Chunker) ChunkSize() int { return c.chunkSize }

// ChunkOverlap returns the overlap in words.
func (c *Chunker) ChunkOverlap() int { return c.chunkOverlap }

// Chunk splits segments into chunks.
//
// Words are added one at a time. As soon as the buffer holds chunkSize words a chunk is
// emitted and the buffer keeps its last chunkOverlap words. A chunk's start time is the start
// of the segment that supplied its first fresh (non carried-over) word. After the last segment
// a final chunk is emitted only if the buffer holds words no earlier chunk contained.
//
// Segments must be in chronological order; a decreasing, negative, or NaN start is rejected.
func (c *Chunker) Chunk(segments []models.TimedSegment) ([]models.Chunk, error) {
	var (
		chunks   []models.Chunk
		buffer   = make([]string, 0, c.chunkSize)
		fresh    int     // words in buffer not yet emitted
		freshSeg = -1    // index of the segment that supplied the first fresh word
		prev     float64 // previous segment start
	)
	for i, seg := range segments {
		if math.IsNaN(seg.Start) || seg.Start < 0 {
			return nil, fmt.Errorf("%w: segment %d has invalid start %v", models.ErrInvalidInput, i, seg.Start)
		}
		if i > 0 && seg.Start < prev {
			return nil, fmt.Errorf("%w: segment %d starts at %v before previous %v", models.ErrInvalidInput, i, seg.Start, prev)
		}
		prev = seg.Start
		for _, word := range strings.Fields(seg.Text) {
			if fresh == 0 {
				freshSeg = i
			}
			buffer = append(buffer, word)
			fresh++
			if len(buffer) < c.chunkSize {
				continue
			}
			chunks = append(chunks, models.Chunk{
				Text:      strings.Join(buffer, " "),
				StartTime: segments[freshSeg].Start,
			})
			next := make([]string, c.chunkOverlap, c.chunkSize)
			copy(next, buffer[len(buffer)-c.chunkOverlap:])
			buffer = next
			fresh = 0
		}
	}
	if fresh > 0 {
		chunks = append(chunks, models.Chunk{
			Text:      strings.Join(buffer, " "),
			StartTime: segments[freshSeg].Start,
		})
	}
	return chunks, nil
}
