package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
)

func TestPool_Create(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	if pool.Workers() != 4 {
		t.Errorf("Workers() = %d, want 4", pool.Workers())
	}
	if !pool.IsRunning() {
		t.Error("Pool should be running after creation")
	}
}

func TestPool_CreateDefaultWorkers(t *testing.T) {
	for _, n := range []int{0, -5} {
		pool := NewPool(n)
		if pool.Workers() != runtime.GOMAXPROCS(0) {
			t.Errorf("NewPool(%d).Workers() = %d, want GOMAXPROCS", n, pool.Workers())
		}
		pool.Close()
	}
}

func TestPool_DispatchVisitsEveryRow(t *testing.T) {
	pool := NewPool(4)
	defer pool.Close()

	for _, rows := range []int{0, 1, 3, 100} {
		seen := make([]int32, rows)
		pool.Dispatch(rows, func(row int) {
			atomic.AddInt32(&seen[row], 1)
		})
		for row, n := range seen {
			if n != 1 {
				t.Errorf("rows=%d: row %d ran %d times", rows, row, n)
			}
		}
	}
}

func TestPool_DispatchConcurrent(t *testing.T) {
	pool := NewPool(2)
	defer pool.Close()

	var total atomic.Int64
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			pool.Dispatch(50, func(int) { total.Add(1) })
		}()
	}
	wg.Wait()

	if total.Load() != 8*50 {
		t.Errorf("total = %d, want %d", total.Load(), 8*50)
	}
}

func TestPool_DispatchAfterClose(t *testing.T) {
	pool := NewPool(2)
	pool.Close()
	pool.Close()

	if pool.IsRunning() {
		t.Error("Pool should not be running after Close")
	}
	var count int
	pool.Dispatch(10, func(int) { count++ })
	if count != 10 {
		t.Errorf("count = %d, want 10 (inline after close)", count)
	}
}
