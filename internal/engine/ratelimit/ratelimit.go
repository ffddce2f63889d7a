// Package ratelimit provides a sliding-window event limiter keyed by an
// arbitrary string, used to bound reward-earning actions per user.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter admits at most limit events per key within a rolling window.
// Safe for concurrent use.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	events map[string][]time.Time
}

// New returns a Limiter allowing limit events per window. A non-positive
// limit admits everything.
func New(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		events: make(map[string][]time.Time),
	}
}

// Allow records an event for key at now and reports whether it fits within
// the window. Rejected events are not recorded.
func (l *Limiter) Allow(key string, now time.Time) bool {
	if l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	kept := l.events[key][:0]
	for _, t := range l.events[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}

	if len(kept) >= l.limit {
		l.events[key] = kept
		return false
	}

	l.events[key] = append(kept, now)
	return true
}

// Prune drops keys whose events have all aged out of the window. Intended
// for periodic housekeeping.
func (l *Limiter) Prune(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	for key, events := range l.events {
		live := false
		for _, t := range events {
			if t.After(cutoff) {
				live = true
				break
			}
		}
		if !live {
			delete(l.events, key)
		}
	}
}
