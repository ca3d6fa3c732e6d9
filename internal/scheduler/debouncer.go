// Package scheduler holds cancellable delayed tasks keyed by name.
package scheduler

import (
	"strings"
	"sync"
	"time"
)

type task struct {
	timer *time.Timer
	fn    func()
}

// Debouncer runs at most one pending task per key. Scheduling a key again
// replaces its pending task. A task is out of reach of Cancel and Schedule
// once it has started running.
type Debouncer struct {
	mu      sync.Mutex
	pending map[string]*task
	running sync.WaitGroup
	stopped bool
}

func NewDebouncer() *Debouncer {
	return &Debouncer{pending: make(map[string]*task)}
}

// Schedule arms fn to run after delay, cancelling any pending task for key.
// It returns false once the debouncer is stopped.
func (d *Debouncer) Schedule(key string, delay time.Duration, fn func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return false
	}
	if old, ok := d.pending[key]; ok {
		old.timer.Stop()
	}
	t := &task{fn: fn}
	d.pending[key] = t
	t.timer = time.AfterFunc(delay, func() { d.fire(key, t) })
	return true
}

// Cancel drops the pending task for key. It reports whether one was pending.
func (d *Debouncer) Cancel(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	t, ok := d.pending[key]
	if !ok {
		return false
	}
	t.timer.Stop()
	delete(d.pending, key)
	return true
}

// Flush runs the pending task for key immediately on the calling goroutine.
func (d *Debouncer) Flush(key string) bool {
	d.mu.Lock()
	t, ok := d.take(key)
	d.mu.Unlock()
	if !ok {
		return false
	}
	d.run(t)
	return true
}

// FlushPrefix runs every pending task whose key starts with prefix and
// returns how many ran.
func (d *Debouncer) FlushPrefix(prefix string) int {
	d.mu.Lock()
	var tasks []*task
	for key := range d.pending {
		if strings.HasPrefix(key, prefix) {
			t, _ := d.take(key)
			tasks = append(tasks, t)
		}
	}
	d.mu.Unlock()

	for _, t := range tasks {
		d.run(t)
	}
	return len(tasks)
}

// Pending reports whether key has a task waiting to run.
func (d *Debouncer) Pending(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pending[key]
	return ok
}

// Stop rejects new tasks, runs everything still pending and waits for
// tasks already running.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	tasks := make([]*task, 0, len(d.pending))
	for key := range d.pending {
		t, _ := d.take(key)
		tasks = append(tasks, t)
	}
	d.mu.Unlock()

	for _, t := range tasks {
		d.run(t)
	}
	d.running.Wait()
}

func (d *Debouncer) fire(key string, t *task) {
	d.mu.Lock()
	if cur, ok := d.pending[key]; !ok || cur != t {
		d.mu.Unlock()
		return
	}
	delete(d.pending, key)
	d.running.Add(1)
	d.mu.Unlock()

	defer d.running.Done()
	t.fn()
}

// take removes key from the pending set; callers hold d.mu.
func (d *Debouncer) take(key string) (*task, bool) {
	t, ok := d.pending[key]
	if !ok {
		return nil, false
	}
	t.timer.Stop()
	delete(d.pending, key)
	d.running.Add(1)
	return t, true
}

func (d *Debouncer) run(t *task) {
	defer d.running.Done()
	t.fn()
}
