// Package trigger turns raw page events (history changes, DOM mutation
// bursts) into stabilization triggers. Each event class has a trailing
// edge debouncer so a burst of events produces a single trigger once
// the burst quiets down.
package trigger

import (
	"sync"
	"time"
)

// Debouncer fires fn once per burst, Window after the last Hit. A Hit
// during a pending window restarts the timer, so fn runs only when the
// events stop arriving.
type Debouncer struct {
	window time.Duration
	fn     func()

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a trailing-edge debouncer calling fn on the
// timer goroutine.
func NewDebouncer(window time.Duration, fn func()) *Debouncer {
	return &Debouncer{window: window, fn: fn}
}

// Hit records an event, (re)starting the window.
func (d *Debouncer) Hit() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	d.mu.Unlock()
	d.fn()
}

// Stop cancels any pending fire and rejects further hits.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
