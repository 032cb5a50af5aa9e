package devserver

import (
	"slices"
	"sync"
	"time"
)

// DefaultDebounce is how long the watcher waits for a burst of file
// events to settle before rebuilding.
const DefaultDebounce = 100 * time.Millisecond

// Debouncer batches changed paths and runs its callback with each batch.
// Callbacks never overlap: paths arriving during a callback are queued
// for the next one.
type Debouncer struct {
	wait     time.Duration
	callback func(paths []string)

	mu       sync.Mutex
	timer    *time.Timer
	paths    []string
	pending  []string
	inFlight bool
	stopped  bool
}

func NewDebouncer(wait time.Duration, callback func(paths []string)) *Debouncer {
	return &Debouncer{wait: wait, callback: callback}
}

func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.paths = append(d.paths, path)
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	if d.stopped || len(d.paths) == 0 {
		d.mu.Unlock()
		return
	}
	paths := d.paths
	d.paths = nil
	if d.inFlight {
		d.pending = append(d.pending, paths...)
		d.mu.Unlock()
		return
	}
	d.inFlight = true
	d.mu.Unlock()

	slices.Sort(paths)
	d.callback(slices.Compact(paths))

	d.mu.Lock()
	d.inFlight = false
	if len(d.pending) > 0 && !d.stopped {
		d.paths = append(d.pending, d.paths...)
		d.pending = nil
		d.timer = time.AfterFunc(d.wait, d.flush)
	}
	d.mu.Unlock()
}

// Stop discards queued paths and ignores later ones.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.paths = nil
	d.pending = nil
}
