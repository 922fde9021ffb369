// Package scheduler drives the trading cycle on a fixed cadence.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// CycleFunc runs one complete cycle.
type CycleFunc func(ctx context.Context) error

// Driver is a cooperative tick driver. It runs one cycle immediately, then
// waits interval after each completed cycle, so cycles never overlap and a
// slow cycle delays the next rather than queueing behind it.
type Driver struct {
	interval time.Duration
	cycle    CycleFunc

	mu      sync.Mutex
	stop    chan struct{}
	stopped bool
	runs    int
}

// NewDriver creates a driver. interval must be positive.
func NewDriver(interval time.Duration, cycle CycleFunc) *Driver {
	return &Driver{interval: interval, cycle: cycle, stop: make(chan struct{})}
}

// Run blocks until Stop is called or ctx is cancelled, and returns only
// after any in-flight cycle has finished. Cycle errors are logged and the
// loop continues. A cycle in flight when Stop is called sees its context
// cancelled.
func (d *Driver) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-d.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
		}

		start := time.Now()
		err := d.cycle(ctx)
		d.mu.Lock()
		d.runs++
		n := d.runs
		d.mu.Unlock()
		if err != nil {
			slog.Error("cycle failed", "cycle", n, "err", err, "duration", time.Since(start))
		} else {
			slog.Debug("cycle complete", "cycle", n, "duration", time.Since(start))
		}
		timer.Reset(d.interval)
	}
}

// Stop ends Run. Safe to call more than once and from any goroutine.
func (d *Driver) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped {
		d.stopped = true
		close(d.stop)
	}
}

// Runs returns the number of cycles completed.
func (d *Driver) Runs() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.runs
}
