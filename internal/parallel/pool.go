// Package parallel runs the work-groups of a CPU dispatch on a fixed set of
// goroutines.
package parallel

import (
	"runtime"
	"sync"
)

// Pool is a pool of goroutines executing dispatch rows.
//
// Thread safety: Pool is safe for concurrent use. Concurrent Dispatch calls
// share the same workers.
type Pool struct {
	workers int
	queue   chan func()
	done    chan struct{}
	wg      sync.WaitGroup

	// mu guards running; Dispatch holds it shared while queueing.
	mu      sync.RWMutex
	running bool
}

// NewPool creates a pool with the specified number of workers.
// If workers is 0 or negative, GOMAXPROCS is used.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{
		workers: workers,
		queue:   make(chan func(), max(workers*4, 8)),
		done:    make(chan struct{}),
		running: true,
	}

	p.wg.Add(workers)
	for range workers {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			p.drain()
			return
		case work := <-p.queue:
			work()
		}
	}
}

// drain executes all remaining queued work.
func (p *Pool) drain() {
	for {
		select {
		case work := <-p.queue:
			work()
		default:
			return
		}
	}
}

// Dispatch calls fn(row) for every row in [0, rows) and waits for all calls
// to return. Rows run concurrently, so fn must only touch data owned by its
// row. On a closed pool the rows run on the calling goroutine.
func (p *Pool) Dispatch(rows int, fn func(row int)) {
	if rows <= 0 {
		return
	}

	p.mu.RLock()
	if rows == 1 || !p.running {
		p.mu.RUnlock()
		for row := range rows {
			fn(row)
		}
		return
	}

	var wg sync.WaitGroup
	wg.Add(rows)
	for row := range rows {
		p.queue <- func() {
			defer wg.Done()
			fn(row)
		}
	}
	p.mu.RUnlock()
	wg.Wait()
}

// Close stops the workers after the queued rows have run.
// Close is safe to call multiple times.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *Pool) Workers() int {
	return p.workers
}

// IsRunning returns true if the pool is still accepting work.
func (p *Pool) IsRunning() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.running
}
