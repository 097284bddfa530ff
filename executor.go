package session

import "sync"

// serialExecutor is the Go stand-in for an asio strand: a per-session FIFO
// of closures that is guaranteed never to run two closures for the same
// session concurrently, while different closures may run on different
// worker-pool goroutines across invocations — a single-threaded task queue
// per session, polled by worker threads.
type serialExecutor struct {
	pool *WorkerPool

	mu      sync.Mutex
	pending []func()
	running bool
}

func newSerialExecutor(pool *WorkerPool) *serialExecutor {
	return &serialExecutor{pool: pool}
}

// Post enqueues fn. If no drain loop is currently running for this
// session, one is submitted to the shared pool.
func (e *serialExecutor) Post(fn func()) {
	e.mu.Lock()
	e.pending = append(e.pending, fn)
	start := !e.running
	if start {
		e.running = true
	}
	e.mu.Unlock()

	if start {
		e.pool.Submit(e.drain)
	}
}

// drain runs queued closures until the queue is empty, then clears
// running. New Posts arriving while drain is running are simply appended
// and picked up before drain exits (it re-checks under the lock), so a
// second drain loop is never scheduled concurrently with this one.
func (e *serialExecutor) drain() {
	for {
		e.mu.Lock()
		if len(e.pending) == 0 {
			e.running = false
			e.mu.Unlock()
			return
		}
		fn := e.pending[0]
		e.pending = e.pending[1:]
		e.mu.Unlock()

		fn()
	}
}
