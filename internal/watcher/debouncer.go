package watcher

import (
	"sync"
	"time"
)

// debouncer holds back rapid event bursts per file path. A path fires
// once its window elapses with no further activity; the fire callback
// runs on the timer goroutine.
type debouncer struct {
	window time.Duration
	fire   func(path string)

	mu      sync.Mutex
	pending map[string]*time.Timer
	stopped bool
}

func newDebouncer(window time.Duration, fire func(path string)) *debouncer {
	return &debouncer{
		window:  window,
		fire:    fire,
		pending: make(map[string]*time.Timer),
	}
}

// Touch registers activity on a path, resetting its window.
func (d *debouncer) Touch(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if timer, ok := d.pending[path]; ok {
		timer.Stop()
	}
	d.pending[path] = time.AfterFunc(d.window, func() {
		d.emit(path)
	})
}

// Cancel drops a pending path without firing. Used when a file
// disappears before its window elapses.
func (d *debouncer) Cancel(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if timer, ok := d.pending[path]; ok {
		timer.Stop()
		delete(d.pending, path)
	}
}

// Stop cancels all pending timers. No fires happen after Stop returns.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for path, timer := range d.pending {
		timer.Stop()
		delete(d.pending, path)
	}
}

func (d *debouncer) emit(path string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	_, ok := d.pending[path]
	delete(d.pending, path)
	d.mu.Unlock()

	// A stopped timer can still fire if it raced Touch; the pending
	// map is the source of truth.
	if ok {
		d.fire(path)
	}
}

// PendingCount returns the number of paths waiting out their window.
func (d *debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
