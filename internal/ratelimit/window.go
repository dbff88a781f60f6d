// Package ratelimit implements the per-item sliding window used by the
// transfer pipeline. Rejection is a backpressure signal, not an error: the
// drain loop pauses and re-checks rather than failing the task.
package ratelimit

import (
	"sync"
	"time"
)

type SlidingWindow struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu   sync.Mutex
	hits map[string][]time.Time
}

func NewSlidingWindow(window time.Duration, max int) *SlidingWindow {
	if window <= 0 {
		window = 60 * time.Second
	}
	if max <= 0 {
		max = 20
	}
	return &SlidingWindow{
		window: window,
		max:    max,
		now:    time.Now,
		hits:   make(map[string][]time.Time),
	}
}

// Allow prunes entries older than the window, then admits and records the
// request unless the pruned window is already full.
func (w *SlidingWindow) Allow(key string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	kept := w.prune(key, now)
	if len(kept) >= w.max {
		return false
	}

	w.hits[key] = append(kept, now)
	return true
}

// Len reports the current window occupancy after pruning.
func (w *SlidingWindow) Len(key string) int {
	w.mu.Lock()
	defer w.mu.Unlock()

	kept := w.prune(key, w.now())
	w.hits[key] = kept
	return len(kept)
}

// Clear drops all recorded requests for a key. Called on item teardown.
func (w *SlidingWindow) Clear(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.hits, key)
}

// prune returns the still-valid timestamps for key. Caller must hold w.mu.
func (w *SlidingWindow) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-w.window)
	entries := w.hits[key]

	idx := 0
	for idx < len(entries) && !entries[idx].After(cutoff) {
		idx++
	}
	return entries[idx:]
}
