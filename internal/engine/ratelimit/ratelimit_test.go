package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAllowWithinLimit(t *testing.T) {
	l := New(3, time.Minute)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("u1", now))
	assert.True(t, l.Allow("u1", now.Add(time.Second)))
	assert.True(t, l.Allow("u1", now.Add(2*time.Second)))
	assert.False(t, l.Allow("u1", now.Add(3*time.Second)))
}

func TestAllowWindowSlides(t *testing.T) {
	l := New(2, time.Minute)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("u1", now))
	assert.True(t, l.Allow("u1", now.Add(30*time.Second)))
	assert.False(t, l.Allow("u1", now.Add(45*time.Second)))

	// The first event ages out after a full window.
	assert.True(t, l.Allow("u1", now.Add(61*time.Second)))
}

func TestAllowRejectedEventsNotCounted(t *testing.T) {
	l := New(1, time.Minute)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("u1", now))
	for i := 1; i <= 10; i++ {
		assert.False(t, l.Allow("u1", now.Add(time.Duration(i)*time.Second)))
	}

	// Rejections above did not extend the window.
	assert.True(t, l.Allow("u1", now.Add(61*time.Second)))
}

func TestAllowKeysAreIndependent(t *testing.T) {
	l := New(1, time.Minute)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	assert.True(t, l.Allow("u1", now))
	assert.True(t, l.Allow("u2", now))
	assert.False(t, l.Allow("u1", now))
}

func TestAllowZeroLimitMeansUnlimited(t *testing.T) {
	l := New(0, time.Minute)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow("u1", now))
	}
}

func TestPrune(t *testing.T) {
	l := New(5, time.Minute)
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	l.Allow("old", now)
	l.Allow("fresh", now.Add(2*time.Minute))

	l.Prune(now.Add(2 * time.Minute))

	l.mu.Lock()
	_, hasOld := l.events["old"]
	_, hasFresh := l.events["fresh"]
	l.mu.Unlock()

	assert.False(t, hasOld)
	assert.True(t, hasFresh)
}
