package common

import (
	"sync"
	"time"
)

// Debouncer is a time-based gate: Ready tells whether enough time has
// passed since the last Mark. The pollers use it to keep repeated
// transient-failure warnings from flooding the log while a feed is
// down.
type Debouncer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

func NewDebouncer(interval time.Duration) *Debouncer {
	return &Debouncer{interval: interval}
}

// Ready reports whether the action should run now. It does not update
// internal state; callers Mark after acting.
func (d *Debouncer) Ready(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.interval <= 0 {
		return true
	}
	if d.last.IsZero() {
		return true
	}
	return now.Sub(d.last) >= d.interval
}

// ReadyNow is a convenience wrapper around Ready(time.Now()).
func (d *Debouncer) ReadyNow() bool {
	return d.Ready(time.Now())
}

// Mark records a successful action time.
func (d *Debouncer) Mark(now time.Time) {
	d.mu.Lock()
	d.last = now
	d.mu.Unlock()
}

// MarkNow records time.Now() as the action time.
func (d *Debouncer) MarkNow() { d.Mark(time.Now()) }

// Reset clears the last action time so the next Ready returns true.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	d.last = time.Time{}
	d.mu.Unlock()
}
