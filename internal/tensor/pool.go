package tensor

import (
	"runtime"
	"sync"
)

// parallelMinWork is the number of multiply-adds below which a matvec runs on
// the calling goroutine.
const parallelMinWork = 1 << 15

type rowTask struct {
	fn     func(rs, re int)
	rs, re int
	done   chan struct{}
}

type rowPool struct {
	size      int
	tasks     chan rowTask
	doneSlots chan chan struct{}
}

var (
	workPool     *rowPool
	workPoolOnce sync.Once
)

func getRowPool() *rowPool {
	workPoolOnce.Do(func() {
		workPool = newRowPool(runtime.GOMAXPROCS(0))
	})
	return workPool
}

func newRowPool(size int) *rowPool {
	size = max(size, 1)
	p := &rowPool{
		size:      size,
		tasks:     make(chan rowTask, size*2),
		doneSlots: make(chan chan struct{}, size),
	}
	for range size {
		p.doneSlots <- make(chan struct{}, size)
	}
	for range size {
		go func() {
			for task := range p.tasks {
				task.fn(task.rs, task.re)
				task.done <- struct{}{}
			}
		}()
	}
	return p
}

// parallelRows splits [0, rows) into contiguous chunks and runs fn on each.
// It returns once every chunk has completed.
func parallelRows(rows, work int, fn func(rs, re int)) {
	if rows <= 0 {
		return
	}
	if work < parallelMinWork {
		fn(0, rows)
		return
	}
	pool := getRowPool()
	workers := min(pool.size, rows)
	if workers <= 1 {
		fn(0, rows)
		return
	}

	chunk := (rows + workers - 1) / workers
	done := <-pool.doneSlots
	active := 0
	for rs := 0; rs < rows; rs += chunk {
		re := min(rs+chunk, rows)
		active++
		pool.tasks <- rowTask{fn: fn, rs: rs, re: re, done: done}
	}
	for range active {
		<-done
	}
	pool.doneSlots <- done
}
