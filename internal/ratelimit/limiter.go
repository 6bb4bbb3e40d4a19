package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter serializes callers so that successive grants are at least Interval apart.
// The first grant is immediate.
type Limiter struct {
	clock    Clock
	mu       sync.Mutex
	interval time.Duration
	next     time.Time // earliest time the next grant may happen
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithClock sets the clock (defaults to SystemClock).
func WithClock(c Clock) LimiterOption {
	return func(l *Limiter) { l.clock = c }
}

// NewLimiter returns a limiter granting at most one request per interval.
// An interval <= 0 disables limiting.
func NewLimiter(interval time.Duration, opts ...LimiterOption) *Limiter {
	l := &Limiter{clock: SystemClock{}, interval: interval}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewLimiterFromRPM returns a limiter sized to a requests-per-minute quota (5 RPM = 12s).
// safety is added on top of the computed interval. rpm <= 0 disables limiting.
func NewLimiterFromRPM(rpm int, safety time.Duration, opts ...LimiterOption) *Limiter {
	return NewLimiter(IntervalFromRPM(rpm, safety), opts...)
}

// IntervalFromRPM converts a per-minute quota into the minimum spacing between requests.
func IntervalFromRPM(rpm int, safety time.Duration) time.Duration {
	if rpm <= 0 {
		return 0
	}
	return time.Minute/time.Duration(rpm) + safety
}

// Interval returns the minimum spacing between grants.
func (l *Limiter) Interval() time.Duration {
	if l == nil {
		return 0
	}
	return l.interval
}

// Wait blocks until the caller may issue a request or ctx is done. Each caller reserves the
// next free slot and sleeps without holding the lock, so a cancelled waiter returns at once
// and gives its slot back when nobody has queued behind it.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.interval <= 0 {
		return ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	slot := l.clock.Now()
	if l.next.After(slot) {
		slot = l.next
	}
	l.next = slot.Add(l.interval)
	reserved := l.next
	wait := slot.Sub(l.clock.Now())
	l.mu.Unlock()

	if wait <= 0 {
		return nil
	}
	if err := l.clock.Sleep(ctx, wait); err != nil {
		l.mu.Lock()
		if l.next.Equal(reserved) {
			l.next = slot
		}
		l.mu.Unlock()
		return err
	}
	return nil
}

// Penalize pushes the next grant out by d, used when the provider signals throttling.
func (l *Limiter) Penalize(d time.Duration) {
	if l == nil || d <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if next := l.clock.Now().Add(d); next.After(l.next) {
		l.next = next
	}
}
