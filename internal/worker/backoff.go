package worker

import (
	"math/rand/v2"
	"sync"
	"time"
)

// backoffTracker remembers consecutive oracle failures per post and keeps a
// failing post out of subsequent passes until its window elapses.
//
// Delay after n consecutive failures:
//
//	min(maxDelay, base * 2^(n-1)) scaled by a random factor in [0.5, 1.5)
//
// so posts that start failing together do not retry together.
type backoffTracker struct {
	mu       sync.Mutex
	base     time.Duration
	maxDelay time.Duration
	entries  map[string]backoffEntry
	jitter   func() float64
}

type backoffEntry struct {
	failures int
	until    time.Time
}

func newBackoffTracker(base, maxDelay time.Duration) *backoffTracker {
	return &backoffTracker{
		base:     base,
		maxDelay: maxDelay,
		entries:  make(map[string]backoffEntry),
		jitter:   rand.Float64,
	}
}

// Ready reports whether id may be queried at now.
func (b *backoffTracker) Ready(id string, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[id]
	return !ok || !now.Before(e.until)
}

// Failure records a failed query and returns the delay until the next attempt.
func (b *backoffTracker) Failure(id string, now time.Time) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	e := b.entries[id]
	e.failures++
	delay := b.delay(e.failures)
	e.until = now.Add(delay)
	b.entries[id] = e
	return delay
}

// Success clears the failure history of id.
func (b *backoffTracker) Success(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, id)
}

// Retain drops state for every id not in live.
func (b *backoffTracker) Retain(live map[string]struct{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.entries {
		if _, ok := live[id]; !ok {
			delete(b.entries, id)
		}
	}
}

// Failures returns the consecutive failure count of id.
func (b *backoffTracker) Failures(id string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entries[id].failures
}

func (b *backoffTracker) delay(failures int) time.Duration {
	d := b.base
	for i := 1; i < failures && d < b.maxDelay; i++ {
		d *= 2
	}
	if d > b.maxDelay {
		d = b.maxDelay
	}
	return time.Duration(float64(d) * (0.5 + b.jitter()))
}
