package pool

import (
	"context"
	"sync/atomic"
)

// worker states
const (
	workerIdle int32 = iota
	workerWorking
	workerStopped
)

// worker is a single pool goroutine draining the ready queue.
type worker struct {
	id    int
	state int32 // atomic

	quit chan struct{}
}

func newWorker(id int) *worker {
	return &worker{
		id:   id,
		quit: make(chan struct{}),
	}
}

// run is the worker loop: dequeue a ready task, execute it, record the
// outcome. Exits when the pool context is cancelled or the worker is
// retired by Resize.
func (w *worker) run(ctx context.Context, p *Pool) {
	defer atomic.StoreInt32(&w.state, workerStopped)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.quit:
			return
		case t := <-p.queue:
			atomic.StoreInt32(&w.state, workerWorking)
			p.runTask(t)
			atomic.StoreInt32(&w.state, workerIdle)
		}
	}
}

// retire asks the worker to exit after its current task.
func (w *worker) retire() {
	select {
	case <-w.quit:
		// already retired
	default:
		close(w.quit)
	}
}

func (w *worker) working() bool {
	return atomic.LoadInt32(&w.state) == workerWorking
}
