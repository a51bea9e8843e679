package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/panics"

	"github.com/beltegeuse/nanothread/pkg/types"
)

// Config defines configuration for a pool
type Config struct {
	// Workers is the number of worker goroutines
	Workers int

	// QueueSize is the buffered capacity of the ready queue. Submissions
	// beyond it never block; they spill to a goroutine instead.
	QueueSize int

	// StopTimeout bounds how long Stop waits for outstanding tasks
	StopTimeout time.Duration

	// Clock for time operations (optional, defaults to real clock)
	Clock types.Clock
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Workers:     runtime.NumCPU(),
		QueueSize:   256,
		StopTimeout: 10 * time.Second,
		Clock:       types.NewRealClock(),
	}
}

// pool lifecycle states
const (
	stateCreated int32 = iota
	stateRunning
	stateStopped
	stateClosed
)

// Pool executes tasks on a fixed set of worker goroutines and drives them
// from Ready to Done or Failed. Goroutines blocked in Task.Wait assist the
// workers by running ready tasks themselves.
type Pool struct {
	config *Config
	queue  chan *Task

	workers []*worker

	state  int32 // atomic
	ctx    context.Context
	cancel context.CancelFunc

	// outstanding counts created tasks until their completion handling,
	// including dependents, has run
	outstanding sync.WaitGroup
	workerWG    sync.WaitGroup

	// statistics; counted in runTask so assisted executions are included
	totalProcessed atomic.Int64
	totalFailed    atomic.Int64

	mu sync.RWMutex
}

// New creates a new pool
func New(config *Config) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if config.Workers <= 0 {
		return nil, fmt.Errorf("worker count must be positive, got %d", config.Workers)
	}
	if config.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", config.QueueSize)
	}
	if config.StopTimeout <= 0 {
		config.StopTimeout = 10 * time.Second
	}
	if config.Clock == nil {
		config.Clock = types.NewRealClock()
	}

	return &Pool{
		config: config,
		queue:  make(chan *Task, config.QueueSize),
	}, nil
}

// Start starts the worker goroutines
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch atomic.LoadInt32(&p.state) {
	case stateCreated:
	case stateRunning:
		return fmt.Errorf("pool is already running")
	default:
		return types.ErrPoolClosed
	}

	// the context must be in place before the running state is visible to
	// task creation
	p.ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.config.Workers; i++ {
		p.spawnWorkerLocked(i)
	}
	atomic.StoreInt32(&p.state, stateRunning)

	return nil
}

// spawnWorkerLocked requires p.mu to be held.
func (p *Pool) spawnWorkerLocked(id int) {
	w := newWorker(id)
	p.workers = append(p.workers, w)
	p.workerWG.Add(1)
	go func() {
		defer p.workerWG.Done()
		w.run(p.ctx, p)
	}()
}

// NewTask creates a task that runs body once every predecessor in deps has
// finished successfully. With no deps the task is ready immediately. A nil
// body makes a join task. The returned task carries one reference owned by
// the caller; any predecessor that has already failed fails the new task
// without running its body.
func (p *Pool) NewTask(body Body, deps ...*Task) (*Task, error) {
	if err := p.accepting(); err != nil {
		return nil, err
	}

	t := &Task{
		pool:    p,
		body:    body,
		pending: 1, // creation guard, released below
		done:    make(chan struct{}),
	}
	t.refs.Store(2) // caller + scheduler hold

	p.outstanding.Add(1)
	if err := p.accepting(); err != nil {
		// lost the race against Stop
		p.outstanding.Done()
		return nil, err
	}

	// Register on each predecessor. The pending count is raised before the
	// registration becomes visible, so a predecessor finishing inside the
	// window consumes the count it was given, never the creation guard; a
	// predecessor that is already terminal reports its outcome here and
	// the count is taken back. Either way the predecessor is counted
	// exactly once.
	for _, d := range deps {
		if d == nil {
			continue
		}
		t.mu.Lock()
		t.pending++
		t.mu.Unlock()

		registered, failure := d.addSuccessor(t)
		if registered {
			continue
		}

		t.mu.Lock()
		t.pending--
		if failure != nil && !t.failedPred {
			t.failedPred = true
			t.inherited = failure
		}
		t.mu.Unlock()
	}

	// release the creation guard; with no unfinished predecessors this
	// transitions the task to ready and submits it, or fails it if a
	// predecessor had already failed
	t.predecessorDone(nil)
	return t, nil
}

func (p *Pool) accepting() error {
	switch atomic.LoadInt32(&p.state) {
	case stateRunning:
		return nil
	case stateCreated:
		return types.ErrPoolNotStarted
	default:
		return types.ErrPoolClosed
	}
}

// enqueue places a ready task on the queue without ever blocking the
// caller: task creation and completion handling must stay non-blocking.
func (p *Pool) enqueue(t *Task) {
	select {
	case p.queue <- t:
	default:
		go func() { p.queue <- t }()
	}
}

// runTask executes one dequeued task: body errors and panics are captured
// into the task's failure slot, never surfaced here.
func (p *Pool) runTask(t *Task) {
	t.mu.Lock()
	if State(t.state.Load()) != StateReady {
		t.mu.Unlock()
		return
	}
	t.setStateLocked(StateRunning)
	body := t.body
	t.mu.Unlock()

	var failure *types.Failure
	if body != nil {
		var err error
		if recovered := panics.Try(func() { err = body(p.ctx) }); recovered != nil {
			failure = types.PanicFailure(recovered.Value, recovered.AsError())
		} else if err != nil {
			failure = types.BodyFailure(err)
		}
	}
	if failure != nil {
		p.totalFailed.Add(1)
	} else {
		p.totalProcessed.Add(1)
	}
	t.finish(failure)
}

// taskFinished runs once per task, after its successors were notified.
func (p *Pool) taskFinished(t *Task) {
	p.outstanding.Done()
	t.Release() // scheduler hold
}

// Stop stops the pool: new task creation is rejected, outstanding tasks and
// their dependents run to completion, then the workers retire. Returns
// ErrStopTimeout if the outstanding work does not finish within the
// configured timeout; Stop may then be called again.
func (p *Pool) Stop() error {
	if !atomic.CompareAndSwapInt32(&p.state, stateRunning, stateStopped) {
		switch atomic.LoadInt32(&p.state) {
		case stateCreated:
			return types.ErrPoolNotStarted
		case stateStopped:
			// a previous Stop timed out; wait again
		default:
			return types.ErrPoolClosed
		}
	}

	drained := make(chan struct{})
	go func() {
		p.outstanding.Wait()
		close(drained)
	}()

	select {
	case <-drained:
	case <-p.config.Clock.After(p.config.StopTimeout):
		return types.ErrStopTimeout
	}

	p.cancel()
	p.workerWG.Wait()
	return nil
}

// Close stops the pool and releases resources. A Close that fails (for
// example because Stop timed out) may be retried; once the pool is closed,
// further calls are no-ops.
func (p *Pool) Close() error {
	if atomic.LoadInt32(&p.state) == stateClosed {
		return nil
	}

	if err := p.Stop(); err != nil {
		if errors.Is(err, types.ErrPoolClosed) {
			// lost the race against a concurrent Close
			return nil
		}
		return err
	}

	atomic.StoreInt32(&p.state, stateClosed)

	p.mu.Lock()
	p.workers = nil
	p.mu.Unlock()
	return nil
}

// Resize adjusts the number of workers on a running pool. Growing spawns
// new workers immediately; shrinking retires surplus workers after the task
// they are currently executing, never aborting in-flight work.
func (p *Pool) Resize(n int) error {
	if n <= 0 {
		return fmt.Errorf("worker count must be positive, got %d", n)
	}
	if err := p.accepting(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case n > len(p.workers):
		for i := len(p.workers); i < n; i++ {
			p.spawnWorkerLocked(i)
		}
	case n < len(p.workers):
		for _, w := range p.workers[n:] {
			w.retire()
		}
		p.workers = p.workers[:n]
	}
	return nil
}

// Size returns the current number of workers
func (p *Pool) Size() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.workers)
}

// IsRunning checks if the pool is running
func (p *Pool) IsRunning() bool {
	return atomic.LoadInt32(&p.state) == stateRunning
}

// PoolStats defines basic pool statistics
type PoolStats struct {
	// Workers is the current number of workers
	Workers int

	// ActiveWorkers is the number of workers executing a task
	ActiveWorkers int

	// QueueDepth is the number of ready tasks waiting in the queue
	QueueDepth int

	// QueueCapacity is the buffered capacity of the queue
	QueueCapacity int

	// TotalProcessed is the number of task bodies that returned normally
	TotalProcessed int64

	// TotalFailed is the number of tasks whose body failed
	TotalFailed int64
}

// Stats returns pool statistics
func (p *Pool) Stats() PoolStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var active int
	for _, w := range p.workers {
		if w.working() {
			active++
		}
	}

	return PoolStats{
		Workers:        len(p.workers),
		ActiveWorkers:  active,
		QueueDepth:     len(p.queue),
		QueueCapacity:  p.config.QueueSize,
		TotalProcessed: p.totalProcessed.Load(),
		TotalFailed:    p.totalFailed.Load(),
	}
}
