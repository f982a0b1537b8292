package spool

import (
	"sync"
	"time"
)

// Debouncer runs fn once per key after the key has been quiet for duration.
type Debouncer struct {
	duration time.Duration
	timers   map[string]*time.Timer
	mu       sync.Mutex
	wg       sync.WaitGroup
	stopped  bool
}

func NewDebouncer(duration time.Duration) *Debouncer {
	return &Debouncer{
		duration: duration,
		timers:   make(map[string]*time.Timer),
	}
}

func (d *Debouncer) Debounce(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if timer, exists := d.timers[key]; exists && timer.Stop() {
		d.wg.Done()
	}

	var timer *time.Timer
	d.wg.Add(1)
	timer = time.AfterFunc(d.duration, func() {
		defer d.wg.Done()

		d.mu.Lock()
		if d.timers[key] == timer {
			delete(d.timers, key)
		}
		d.mu.Unlock()

		fn()
	})
	d.timers[key] = timer
}

// Stop drops pending calls and waits for the ones already running.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	for key, timer := range d.timers {
		if timer.Stop() {
			d.wg.Done()
		}
		delete(d.timers, key)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
