package events

import (
	"sync"
	"time"
)

// RateTracker maintains a sliding time window over flow-start events and
// exposes an instantaneous requests-per-second figure.
type RateTracker struct {
	mu     sync.Mutex
	window time.Duration
	starts []time.Time
}

// NewRateTracker creates a tracker with the given window width. A
// non-positive width falls back to one minute.
func NewRateTracker(window time.Duration) *RateTracker {
	if window <= 0 {
		window = time.Minute
	}
	return &RateTracker{window: window}
}

// Record notes one flow start at time t.
func (rt *RateTracker) Record(t time.Time) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.prune(t)
	rt.starts = append(rt.starts, t)
}

// Rate returns the instantaneous requests-per-second over the window.
func (rt *RateTracker) Rate() float64 {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.prune(time.Now())
	return float64(len(rt.starts)) / rt.window.Seconds()
}

// Count returns the raw number of flow starts inside the window.
func (rt *RateTracker) Count() int {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	rt.prune(time.Now())
	return len(rt.starts)
}

// Window returns the current window width.
func (rt *RateTracker) Window() time.Duration {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.window
}

// SetWindow changes the window width. Events older than the new window are
// discarded on the next observation.
func (rt *RateTracker) SetWindow(window time.Duration) {
	if window <= 0 {
		return
	}
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.window = window
}

// prune drops starts that fell out of the window. Callers must hold mu.
func (rt *RateTracker) prune(now time.Time) {
	cutoff := now.Add(-rt.window)
	i := 0
	for i < len(rt.starts) && rt.starts[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		rt.starts = append(rt.starts[:0], rt.starts[i:]...)
	}
}
