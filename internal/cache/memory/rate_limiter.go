package memory

import (
	"context"
	"sync"
	"time"
)

// RateLimiter is an in-process sliding-window domain.RateLimiter.
type RateLimiter struct {
	mu   sync.Mutex
	hits map[string][]time.Time
	now  func() time.Time
}

// NewRateLimiter creates an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{hits: make(map[string][]time.Time), now: time.Now}
}

// Allow counts a request against key if fewer than limit were admitted in
// the trailing window.
func (r *RateLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cutoff := now.Add(-window)
	kept := r.hits[key][:0]
	for _, t := range r.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	if len(kept) >= limit {
		r.hits[key] = kept
		return false, nil
	}
	r.hits[key] = append(kept, now)
	return true, nil
}

// Cleanup drops keys with no hits inside window.
func (r *RateLimiter) Cleanup(window time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cutoff := r.now().Add(-window)
	for key, hits := range r.hits {
		if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
			delete(r.hits, key)
		}
	}
}
