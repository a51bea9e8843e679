package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/beltegeuse/nanothread/pkg/types"
)

// State describes where a task is in its lifecycle
type State int32

const (
	// StatePending means one or more predecessors have not finished
	StatePending State = iota
	// StateReady means the task is eligible to run and sits in the queue
	StateReady
	// StateRunning means a worker (or an assisting waiter) runs the body
	StateRunning
	// StateDone means the body returned normally
	StateDone
	// StateFailed means the body failed or a predecessor failure was inherited
	StateFailed
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Body is the work a task performs. A nil body makes a pure join task that
// completes as soon as its predecessors have.
type Body func(ctx context.Context) error

// Task is a unit of schedulable work. A Task is created through
// Pool.NewTask, runs at most once on the owning pool, and carries explicit
// reference counts: the creator holds one reference and must eventually
// call Release or WaitAndRelease.
//
// State only moves forward. Once Done or Failed is reached no further
// transitions occur; the failure slot, if set, is final.
type Task struct {
	pool *Pool

	refs  atomic.Int32
	state atomic.Int32 // written under mu, read lock-free

	mu         sync.Mutex
	pending    int
	failedPred bool
	inherited  *types.Failure // first predecessor failure, latched
	successors []*Task
	body       Body
	failure    *types.Failure

	// closed exactly once, on the transition into a terminal state
	done chan struct{}
}

// State returns the current lifecycle state.
func (t *Task) State() State {
	return State(t.state.Load())
}

// setStateLocked requires t.mu to be held.
func (t *Task) setStateLocked(s State) {
	t.state.Store(int32(s))
}

// Done returns a channel that is closed once the task reaches a terminal
// state.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Err returns the captured failure, or nil while the task has not failed.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failure == nil {
		return nil
	}
	return t.failure
}

// Retain adds one reference to the task.
func (t *Task) Retain() {
	t.refs.Add(1)
}

// Release drops one reference. When the count reaches zero and the task is
// terminal its body and graph links are dropped; a release that happens
// earlier is recorded and the cleanup runs when the task finishes.
func (t *Task) Release() {
	if t.refs.Add(-1) == 0 && t.State().Terminal() {
		t.free()
	}
}

func (t *Task) free() {
	t.mu.Lock()
	t.body = nil
	t.successors = nil
	t.mu.Unlock()
}

// addSuccessor registers s for completion notification. It is atomic with
// respect to t finishing: either s is registered before the terminal
// transition and will be notified by it, or t is already terminal and the
// outcome is returned for the caller to apply directly.
func (t *Task) addSuccessor(s *Task) (registered bool, failure *types.Failure) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !State(t.state.Load()).Terminal() {
		t.successors = append(t.successors, s)
		return true, nil
	}
	return false, t.failure
}

// predecessorDone is invoked once per finished predecessor and consumes one
// pending count. The first non-nil failure latches failedPred; later
// failures lose. The terminal transition happens only once the last
// predecessor has finished, so a waiter never unblocks while part of the
// dependency set is still running — a latched failure still means the body
// is skipped.
func (t *Task) predecessorDone(failure *types.Failure) {
	t.mu.Lock()
	if State(t.state.Load()).Terminal() {
		t.mu.Unlock()
		return
	}
	if failure != nil && !t.failedPred {
		t.failedPred = true
		t.inherited = failure
	}
	t.pending--
	if t.pending > 0 {
		t.mu.Unlock()
		return
	}

	if t.failedPred {
		inherited := t.inherited
		t.mu.Unlock()
		t.finish(types.Propagate(inherited))
		return
	}

	ready := State(t.state.Load()) == StatePending
	if ready {
		t.setStateLocked(StateReady)
	}
	t.mu.Unlock()

	if ready {
		t.pool.enqueue(t)
	}
}

// finish moves the task into its terminal state and fans the outcome out to
// all registered successors. Exactly one finish call wins; the rest return
// without effect.
func (t *Task) finish(failure *types.Failure) {
	t.mu.Lock()
	if State(t.state.Load()).Terminal() {
		t.mu.Unlock()
		return
	}
	t.failure = failure
	if failure != nil {
		t.setStateLocked(StateFailed)
	} else {
		t.setStateLocked(StateDone)
	}
	succs := t.successors
	t.successors = nil
	close(t.done)
	t.mu.Unlock()

	for _, s := range succs {
		s.predecessorDone(failure)
	}
	t.pool.taskFinished(t)
}

// Wait blocks until the task is terminal and returns its failure, if any.
// While blocked the calling goroutine executes other ready tasks from the
// same pool, so progress is guaranteed even when every worker is occupied
// or the wait happens from inside another task's body.
func (t *Task) Wait() error {
	for {
		select {
		case <-t.done:
			return t.Err()
		case other := <-t.pool.queue:
			t.pool.runTask(other)
		}
	}
}

// WaitAndRelease blocks until the task is terminal, drops the caller's
// reference and returns the captured failure, if any.
func (t *Task) WaitAndRelease() error {
	err := t.Wait()
	t.Release()
	return err
}
