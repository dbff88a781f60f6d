package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func newTestWindow(window time.Duration, max int) (*SlidingWindow, *time.Time) {
	w := NewSlidingWindow(window, max)
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return current }
	return w, &current
}

func TestAllowUpToMax(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, w.Allow("item"), "request %d should be admitted", i+1)
	}
	assert.False(t, w.Allow("item"), "request max+1 must be rejected")
	assert.Equal(t, 3, w.Len("item"))
}

func TestOldEntriesAgeOut(t *testing.T) {
	w, now := newTestWindow(time.Minute, 2)

	assert.True(t, w.Allow("item"))
	*now = now.Add(30 * time.Second)
	assert.True(t, w.Allow("item"))
	assert.False(t, w.Allow("item"))

	// First entry falls out of the window; exactly one slot opens.
	*now = now.Add(31 * time.Second)
	assert.True(t, w.Allow("item"))
	assert.False(t, w.Allow("item"))
}

func TestKeysIndependent(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 1)

	assert.True(t, w.Allow("a"))
	assert.False(t, w.Allow("a"))
	assert.True(t, w.Allow("b"))
}

func TestClear(t *testing.T) {
	w, _ := newTestWindow(time.Minute, 1)

	assert.True(t, w.Allow("item"))
	assert.False(t, w.Allow("item"))

	w.Clear("item")
	assert.True(t, w.Allow("item"))
}
