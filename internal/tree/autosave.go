package tree

import (
	"sync"
	"time"
)

const DefaultAutoSaveDebounce = time.Second

// autoSaver runs fn once the live tree has been quiet for the debounce period.
// Every Notify cancels the scheduled run and schedules a new one, so at most
// one run is pending and intermediate states are never saved on their own.
type autoSaver struct {
	debounce time.Duration
	fn       func()

	mu      sync.Mutex
	idle    *sync.Cond
	timer   *time.Timer
	gen     uint64
	pending bool
	running bool
	stopped bool
}

func newAutoSaver(debounce time.Duration, fn func()) *autoSaver {
	if debounce <= 0 {
		debounce = DefaultAutoSaveDebounce
	}
	a := &autoSaver{debounce: debounce, fn: fn}
	a.idle = sync.NewCond(&a.mu)
	return a
}

func (a *autoSaver) Notify() {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	if a.timer != nil {
		a.timer.Stop()
	}
	a.gen++
	g := a.gen
	a.pending = true
	a.timer = time.AfterFunc(a.debounce, func() { a.fire(g) })
}

func (a *autoSaver) fire(g uint64) {
	a.mu.Lock()
	if a.stopped || !a.pending || g != a.gen {
		a.mu.Unlock()
		return
	}
	a.pending = false
	a.running = true
	a.mu.Unlock()

	a.fn()

	a.mu.Lock()
	a.running = false
	a.idle.Broadcast()
	a.mu.Unlock()
}

// Cancel drops the scheduled run and reports whether one was pending.
func (a *autoSaver) Cancel() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	was := a.pending
	a.pending = false
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	return was
}

func (a *autoSaver) Pending() bool {
	if a == nil {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending
}

// Flush runs the pending save now, if any. Must not be called while holding
// a lock that fn acquires.
func (a *autoSaver) Flush() {
	if a.Cancel() {
		a.fn()
	}
}

// Stop cancels the scheduled run and waits for a timer-driven run that has
// already started. No run starts afterwards.
func (a *autoSaver) Stop() {
	if a == nil {
		return
	}
	a.Cancel()
	a.mu.Lock()
	a.stopped = true
	for a.running {
		a.idle.Wait()
	}
	a.mu.Unlock()
}
