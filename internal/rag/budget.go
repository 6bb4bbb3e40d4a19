package rag

import "time"

// Budget decides how long one indexing run may take.
type Budget struct {
	// Fixed, when positive, is used as-is.
	Fixed time.Duration
	// Min is the floor added to the rate-limit allowance.
	Min time.Duration
	// BatchSize is how many chunks share one embedding request.
	BatchSize int
	// Interval is the rate limiter's minimum spacing between requests.
	Interval time.Duration
}

// For returns the timeout for indexing n chunks: Min plus one and a half limiter intervals per
// embedding request. Zero means no timeout.
func (b Budget) For(n int) time.Duration {
	if b.Fixed > 0 {
		return b.Fixed
	}
	requests := n
	if b.BatchSize > 0 {
		requests = (n + b.BatchSize - 1) / b.BatchSize
	}
	return b.Min + time.Duration(requests)*b.Interval*3/2
}
