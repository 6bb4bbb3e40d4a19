package vector

import (
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/hyperjump/kotoba/internal/models"
)

// InnerProduct returns the inner product of two vectors (for normalized vectors equals cosine similarity).
func InnerProduct(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}

// L2Norm returns the L2 norm of a vector.
func L2Norm(x []float32) float64 {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

// CosineDistance returns 1 - cos(a, b), in [0, 2]. A zero vector is at distance 1 from everything.
func CosineDistance(a, b []float32) float64 {
	na, nb := L2Norm(a), L2Norm(b)
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - InnerProduct(a, b)/(na*nb)
}

// nearest ranks records by cosine distance to query, ascending, ties broken by position.
// records must share query's dimension.
func nearest(records []models.Record, query []float32, k int) ([]models.Hit, error) {
	if len(records) > 0 && len(query) != len(records[0].Vector) {
		return nil, fmt.Errorf("%w: query has %d dimensions, collection has %d", models.ErrDimensionMismatch, len(query), len(records[0].Vector))
	}
	if k <= 0 {
		k = DefaultK
	}
	type scored struct {
		rec  *models.Record
		dist float64
	}
	scores := make([]scored, len(records))
	for i := range records {
		scores[i] = scored{rec: &records[i], dist: CosineDistance(query, records[i].Vector)}
	}
	slices.SortFunc(scores, func(a, b scored) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.rec.Position, b.rec.Position)
	})
	k = min(k, len(scores))
	hits := make([]models.Hit, k)
	for i := 0; i < k; i++ {
		hits[i] = models.Hit{
			ID:        scores[i].rec.ID,
			Text:      scores[i].rec.Text,
			StartTime: scores[i].rec.StartTime,
			Distance:  scores[i].dist,
		}
	}
	return hits, nil
}
