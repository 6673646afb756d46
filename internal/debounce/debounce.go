// Package debounce coalesces bursts of calls per key into one action after a quiet interval.
package debounce

import (
	"context"
	"sync"
	"time"
)

// Action runs once the quiet interval for key has elapsed.
type Action func(ctx context.Context, key string)

// Debouncer holds one cancellable timer per key. A Trigger before the timer fires cancels it
// and starts a new one, so a burst ends in a single Action.
type Debouncer struct {
	quiet  time.Duration
	action Action

	mu      sync.Mutex
	timers  map[string]*time.Timer
	running sync.WaitGroup
	stopped bool
}

// New returns a debouncer running action after quiet of inactivity per key.
// A zero quiet interval runs the action on its own goroutine right away.
func New(quiet time.Duration, action Action) *Debouncer {
	return &Debouncer{
		quiet:  quiet,
		action: action,
		timers: make(map[string]*time.Timer),
	}
}

// Trigger (re)starts the timer for key.
func (d *Debouncer) Trigger(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}

	if t, ok := d.timers[key]; ok {
		t.Stop()
	}
	var t *time.Timer
	t = time.AfterFunc(d.quiet, func() {
		d.mu.Lock()
		if d.timers[key] != t {
			// Superseded by a later Trigger or taken by Flush.
			d.mu.Unlock()
			return
		}
		delete(d.timers, key)
		d.running.Add(1)
		d.mu.Unlock()

		defer d.running.Done()
		d.action(context.Background(), key)
	})
	d.timers[key] = t
}

// Pending reports whether a timer is armed for key.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.timers[key]
	return ok
}

// take disarms the timer for key and reports whether one was armed.
func (d *Debouncer) take(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.timers[key]
	if ok {
		t.Stop()
		delete(d.timers, key)
	}
	return ok
}

// Flush cancels the timer for key and, if one was armed, runs the action now on the caller's
// goroutine.
func (d *Debouncer) Flush(ctx context.Context, key string) bool {
	if !d.take(key) {
		return false
	}
	d.action(ctx, key)
	return true
}

// FlushAll flushes every armed key and waits for actions already started by timers.
func (d *Debouncer) FlushAll(ctx context.Context) {
	d.mu.Lock()
	keys := make([]string, 0, len(d.timers))
	for k := range d.timers {
		keys = append(keys, k)
	}
	d.mu.Unlock()

	for _, k := range keys {
		d.Flush(ctx, k)
	}
	d.running.Wait()
}

// Stop refuses further triggers, then flushes the keys still armed.
func (d *Debouncer) Stop(ctx context.Context) {
	d.mu.Lock()
	d.stopped = true
	d.mu.Unlock()
	d.FlushAll(ctx)
}
