package llm

import (
	"sync"
	"time"
)

// slidingWindow is a mutex-protected ring of call timestamps enforcing a
// per-minute ceiling. Calls over the ceiling fail fast; nothing is queued.
type slidingWindow struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

func newSlidingWindow(limit int, window time.Duration) *slidingWindow {
	return &slidingWindow{
		limit:  limit,
		window: window,
		stamps: make([]time.Time, 0, limit),
		now:    time.Now,
	}
}

// Allow records a call if the window has room. When the ceiling is hit it
// returns false and the wait until the oldest timestamp rolls out.
func (w *slidingWindow) Allow() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	cutoff := now.Add(-w.window)

	// Prune expired timestamps in place.
	kept := w.stamps[:0]
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	w.stamps = kept

	if len(w.stamps) >= w.limit {
		wait := w.stamps[0].Sub(cutoff)
		return false, wait
	}

	w.stamps = append(w.stamps, now)
	return true, 0
}

// InWindow returns the current count inside the window.
func (w *slidingWindow) InWindow() int {
	w.mu.Lock()
	defer w.mu.Unlock()

	cutoff := w.now().Add(-w.window)
	n := 0
	for _, ts := range w.stamps {
		if ts.After(cutoff) {
			n++
		}
	}
	return n
}
