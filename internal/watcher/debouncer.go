package watcher

import (
	"sync"
	"time"
)

// Debouncer runs a callback once a key has been quiet for the configured
// delay. Each key owns a single timer slot: scheduling a key again cancels
// its pending timer and re-arms it, so only the latest call's deadline counts.
type Debouncer struct {
	delay   time.Duration
	pending map[string]*pendingCall
	mu      sync.Mutex
	stopped bool
}

type pendingCall struct {
	fn    func()
	timer *time.Timer
}

// NewDebouncer creates a debouncer with the given delay
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:   delay,
		pending: make(map[string]*pendingCall),
	}
}

// Delay returns the quiet period
func (d *Debouncer) Delay() time.Duration {
	return d.delay
}

// Schedule (re)arms the timer for key to run fn after the delay
func (d *Debouncer) Schedule(key string, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if call, exists := d.pending[key]; exists {
		call.timer.Stop()
	}

	call := &pendingCall{fn: fn}
	call.timer = time.AfterFunc(d.delay, func() {
		d.fire(key, call)
	})
	d.pending[key] = call
}

// fire runs the callback if it is still the current one for key
func (d *Debouncer) fire(key string, call *pendingCall) {
	d.mu.Lock()
	current, exists := d.pending[key]
	if !exists || current != call {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.mu.Unlock()

	call.fn()
}

// Cancel drops the pending call for key, reporting whether one existed
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	call, exists := d.pending[key]
	if !exists {
		return false
	}
	call.timer.Stop()
	delete(d.pending, key)
	return true
}

// Flush immediately runs all pending callbacks
func (d *Debouncer) Flush() {
	d.mu.Lock()
	calls := make([]*pendingCall, 0, len(d.pending))
	for key, call := range d.pending {
		call.timer.Stop()
		calls = append(calls, call)
		delete(d.pending, key)
	}
	d.mu.Unlock()

	for _, call := range calls {
		call.fn()
	}
}

// Stop cancels all pending callbacks and rejects further scheduling
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	for _, call := range d.pending {
		call.timer.Stop()
	}
	d.pending = make(map[string]*pendingCall)
}

// PendingCount returns the number of armed keys
func (d *Debouncer) PendingCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}
