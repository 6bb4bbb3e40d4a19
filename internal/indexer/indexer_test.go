package indexer

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperjump/kotoba/internal/embedding"
	"github.com/hyperjump/kotoba/internal/models"
	"github.com/hyperjump/kotoba/internal/vector"
)

func testIndexer(t *testing.T, emb embedding.Embedder) (*Indexer, vector.Store) {
	t.Helper()
	chunker, err := NewChunker(4, 1)
	if err != nil {
		t.Fatal(err)
	}
	store := vector.NewMemoryStore(0)
	t.Cleanup(func() { _ = store.Close() })
	return NewIndexer(chunker, emb, store), store
}

type brokenEmbedder struct{ *embedding.HashEmbedder }

func (brokenEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, errors.New("backend down")
}

type shortEmbedder struct{ *embedding.HashEmbedder }

func (e shortEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs, err := e.HashEmbedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	vecs[len(vecs)-1] = vecs[len(vecs)-1][:2]
	return vecs, nil
}

func TestIndexer_IndexChunks(t *testing.T) {
	idx, store := testIndexer(t, embedding.NewHashEmbedder(8))
	ctx := context.Background()
	chunks, err := idx.Chunk([]models.TimedSegment{
		{Text: "one two three", Start: 0},
		{Text: "four five six seven", Start: 5},
	})
	if err != nil {
		t.Fatal(err)
	}
	coll, err := idx.IndexChunks(ctx, "vid", chunks)
	if err != nil {
		t.Fatalf("IndexChunks: %v", err)
	}
	if coll.ChunkCount != len(chunks) || coll.Dimensions != 8 {
		t.Errorf("collection = %+v", coll)
	}
	hits, err := store.Query(ctx, "vid", make([]float32, 8), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != len(chunks) {
		t.Errorf("expected %d stored chunks, got %d", len(chunks), len(hits))
	}

	if err := idx.Delete(ctx, "vid"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Query(ctx, "vid", make([]float32, 8), 1); !errors.Is(err, models.ErrCollectionNotFound) {
		t.Errorf("expected collection gone, got %v", err)
	}
}

func TestIndexer_ChunkRejectsEmptyTranscript(t *testing.T) {
	idx, _ := testIndexer(t, embedding.NewHashEmbedder(8))
	if _, err := idx.Chunk([]models.TimedSegment{{Text: "  ", Start: 0}}); !errors.Is(err, models.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestIndexer_FailuresPublishNothing(t *testing.T) {
	tests := []struct {
		name string
		emb  embedding.Embedder
		want error
	}{
		{"backend error", brokenEmbedder{embedding.NewHashEmbedder(8)}, models.ErrCollaboratorUnavailable},
		{"dimension mismatch", shortEmbedder{embedding.NewHashEmbedder(8)}, models.ErrDimensionMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, store := testIndexer(t, tt.emb)
			_, err := idx.IndexChunks(context.Background(), "vid", []models.Chunk{{Text: "a"}, {Text: "b"}})
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			colls, _ := store.Collections(context.Background())
			if len(colls) != 0 {
				t.Errorf("nothing should be published, got %+v", colls)
			}
		})
	}
}

func TestIndexer_CancelledContext(t *testing.T) {
	idx, store := testIndexer(t, embedding.NewHashEmbedder(8))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := idx.IndexChunks(ctx, "vid", []models.Chunk{{Text: "a"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	colls, _ := store.Collections(context.Background())
	if len(colls) != 0 {
		t.Errorf("cancelled indexing should publish nothing, got %+v", colls)
	}
}
