package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Bucket accumulates counters for one category:event key.
type Bucket struct {
	Count      int64         `json:"count"`
	Success    int64         `json:"success"`
	Failures   int64         `json:"failures"`
	Duration   time.Duration `json:"duration"`
	LastUpdate time.Time     `json:"last_update"`
}

// Tracker keeps in-memory counters per category:event. Buckets are reset to
// zero (not deleted) on a fixed interval so keys stay enumerable.
type Tracker struct {
	resetInterval time.Duration
	logger        zerolog.Logger
	now           func() time.Time

	mu      sync.Mutex
	buckets map[string]*Bucket
}

func NewTracker(resetInterval time.Duration, logger *zerolog.Logger) *Tracker {
	if resetInterval <= 0 {
		resetInterval = time.Hour
	}
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "metrics").Logger()
	}
	return &Tracker{
		resetInterval: resetInterval,
		logger:        base,
		now:           time.Now,
		buckets:       make(map[string]*Bucket),
	}
}

// Track records one event under category:event.
func (t *Tracker) Track(category, event string, success bool, duration time.Duration) {
	key := category + ":" + event

	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.buckets[key]
	if !ok {
		b = &Bucket{}
		t.buckets[key] = b
	}

	b.Count++
	if success {
		b.Success++
	} else {
		b.Failures++
	}
	b.Duration += duration
	b.LastUpdate = t.now()
}

// Get returns a copy of all buckets whose key starts with "category:".
func (t *Tracker) Get(category string) map[string]Bucket {
	prefix := category + ":"

	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Bucket)
	for key, b := range t.buckets {
		if strings.HasPrefix(key, prefix) {
			out[key] = *b
		}
	}
	return out
}

// All returns a copy of every bucket.
func (t *Tracker) All() map[string]Bucket {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]Bucket, len(t.buckets))
	for key, b := range t.buckets {
		out[key] = *b
	}
	return out
}

// Reset zeroes every bucket's counters while keeping the keys.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, b := range t.buckets {
		*b = Bucket{LastUpdate: b.LastUpdate}
	}
}

// Start runs the periodic reset until ctx is done.
func (t *Tracker) Start(ctx context.Context) {
	ticker := time.NewTicker(t.resetInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Reset()
			t.logger.Debug().Msg("metric buckets reset")
		}
	}
}
