package tree

import (
	"context"
	"sync"
	"time"
)

const writeTimeout = 10 * time.Second

// writer performs persistence off the mutation path. Jobs are coalesced per
// key so only the latest snapshot for a key is written (last write wins).
// Failures go to onErr; nothing is retried, the next mutation re-persists.
type writer struct {
	onErr func(key string, err error)

	mu      sync.Mutex
	cond    *sync.Cond
	pending map[string]func(context.Context) error
	order   []string
	busy    bool
	closed  bool

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
}

func newWriter(onErr func(key string, err error)) *writer {
	w := &writer{
		onErr:   onErr,
		pending: map[string]func(context.Context) error{},
		wake:    make(chan struct{}, 1),
		quit:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

func (w *writer) enqueue(key string, job func(context.Context) error) {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	if _, ok := w.pending[key]; !ok {
		w.order = append(w.order, key)
	}
	w.pending[key] = job
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *writer) loop() {
	defer close(w.done)
	for {
		select {
		case <-w.wake:
			w.drain()
		case <-w.quit:
			w.drain()
			return
		}
	}
}

func (w *writer) drain() {
	for {
		w.mu.Lock()
		if len(w.order) == 0 {
			w.busy = false
			w.cond.Broadcast()
			w.mu.Unlock()
			return
		}
		key := w.order[0]
		w.order = w.order[1:]
		job := w.pending[key]
		delete(w.pending, key)
		w.busy = true
		w.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		err := job(ctx)
		cancel()
		if err != nil && w.onErr != nil {
			w.onErr(key, err)
		}
	}
}

// Wait blocks until every queued write has been attempted.
func (w *writer) Wait() {
	w.mu.Lock()
	for len(w.order) > 0 || w.busy {
		w.cond.Wait()
	}
	w.mu.Unlock()
}

func (w *writer) Close(ctx context.Context) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.quit)
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
