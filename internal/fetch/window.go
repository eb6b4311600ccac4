package fetch

import (
	"sync"
	"time"
)

// RateWindow counts dispatches per category over a trailing time span.
// It is observability only: the queue's pacing comes from the rate
// limiters, the window just answers "how many calls did we actually
// make lately".
type RateWindow struct {
	mu     sync.Mutex
	span   time.Duration
	events map[Category][]time.Time
}

// NewRateWindow returns a window covering the trailing span.
func NewRateWindow(span time.Duration) *RateWindow {
	return &RateWindow{
		span:   span,
		events: make(map[Category][]time.Time),
	}
}

// Span returns the window's trailing span.
func (w *RateWindow) Span() time.Duration { return w.span }

// Observe records one dispatch for the category.
func (w *RateWindow) Observe(c Category) {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events[c] = append(w.prune(w.events[c], now), now)
}

// Count returns the number of dispatches for the category within the
// trailing span.
func (w *RateWindow) Count(c Category) int {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.events[c] = w.prune(w.events[c], now)
	return len(w.events[c])
}

// Counts returns per-category dispatch counts within the trailing
// span. Categories with no recent dispatches are dropped from the map.
func (w *RateWindow) Counts() map[Category]int {
	now := time.Now()
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make(map[Category]int, len(w.events))
	for c, times := range w.events {
		times = w.prune(times, now)
		if len(times) == 0 {
			delete(w.events, c)
			continue
		}
		w.events[c] = times
		out[c] = len(times)
	}
	return out
}

// prune drops events older than the span. Caller holds w.mu.
func (w *RateWindow) prune(times []time.Time, now time.Time) []time.Time {
	var valid []time.Time
	for _, t := range times {
		if now.Sub(t) < w.span {
			valid = append(valid, t)
		}
	}
	return valid
}
