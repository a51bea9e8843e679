/*
Package pool provides a task-parallel execution runtime: a fixed set of
worker goroutines, a dependency graph between tasks, and reference-counted
task handles.

# Tasks

A Task wraps a body function together with lifecycle state (Pending, Ready,
Running, Done, Failed), a reference count and predecessor/successor links.
Tasks are created with Pool.NewTask; predecessors are fixed at creation
time. A task becomes ready exactly when its last predecessor finishes
successfully. If any predecessor fails, the task inherits the first such
failure with the original message preserved verbatim, never runs its body,
and passes the failure on to its own successors. Failed or not, the task
turns terminal only once every predecessor has finished, so waiters always
gate on the full dependency set.

# Failure handling

Body errors and panics are captured at the worker boundary into the task's
failure slot; a failing body never terminates a worker. Failures surface
only at synchronization points: Task.Wait and Task.WaitAndRelease.

# Cooperative waiting

A goroutine blocked in Task.Wait does not idle: it drains and executes
other ready tasks from the same pool until its target is terminal. This
guarantees forward progress even when a wait happens from inside another
task's body on a pool with few workers.

# Lifecycle

Pools are constructed with New, started with Start, and shut down with Stop
or Close. Shutdown rejects new task creation but lets every outstanding
task and its dependents run to completion; running bodies are never
aborted. Default returns a lazily started process-wide pool.
*/
package pool
