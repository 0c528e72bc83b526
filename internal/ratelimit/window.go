// Package ratelimit implements the Adaptive Rate Limiter (C4): three
// always-present sliding windows (hourly/minute/burst), lazily-created
// per-subject windows, an externally-driven upstream quota tracker, and
// a multiplicative adaptive throttle factor. Grounded directly in
// original_source/src/github_automation/rate_limiter.py, re-expressed
// per spec.md §9's "exception-for-control-flow" redesign flag as
// explicit Admit/Deny outcomes instead of raised exceptions.
package ratelimit

import (
	"sync"
	"time"
)

// Window is a (size, capacity) sliding window of request timestamps.
// Owned by a single mutex per spec.md §5's shared-resource policy.
type Window struct {
	mu       sync.Mutex
	size     time.Duration
	capacity int
	stamps   []time.Time
}

// NewWindow returns an empty window of the given size and capacity.
func NewWindow(size time.Duration, capacity int) *Window {
	return &Window{size: size, capacity: capacity}
}

// evictLocked drops timestamps older than now-size. Caller holds mu.
func (w *Window) evictLocked(now time.Time) {
	cutoff := now.Add(-w.size)
	idx := 0
	for idx < len(w.stamps) && w.stamps[idx].Before(cutoff) {
		idx++
	}
	if idx > 0 {
		w.stamps = w.stamps[idx:]
	}
}

// Count returns the number of timestamps within the window as of now,
// after evicting stale entries.
func (w *Window) Count(now time.Time) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(now)
	return len(w.stamps)
}

// HasSlot reports whether one more request would still respect
// effectiveCapacity (capacity scaled by the adaptive throttle factor).
func (w *Window) HasSlot(now time.Time, effectiveCapacity int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(now)
	return len(w.stamps) < effectiveCapacity
}

// Record unconditionally appends a request timestamp, regardless of
// capacity; admission is decided separately by HasSlot.
func (w *Window) Record(now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(now)
	w.stamps = append(w.stamps, now)
}

// TimeUntilSlot returns max(0, oldest+size-now): how long until the
// oldest timestamp ages out of the window, freeing a slot.
func (w *Window) TimeUntilSlot(now time.Time) time.Duration {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.evictLocked(now)
	if len(w.stamps) == 0 {
		return 0
	}
	wait := w.stamps[0].Add(w.size).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Capacity returns the window's nominal (unthrottled) capacity.
func (w *Window) Capacity() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.capacity
}

func effectiveCapacity(capacity int, factor float64) int {
	if factor < 1.0 {
		factor = 1.0
	}
	eff := int(float64(capacity) / factor)
	if eff < 0 {
		eff = 0
	}
	return eff
}
