// Package types defines the failure model and core abstractions shared by
// the pool and parallel packages.
package types

import (
	"errors"
	"fmt"
)

// Predefined errors
var (
	// ErrPoolNotStarted indicates the pool has not been started yet
	ErrPoolNotStarted = errors.New("pool is not started")

	// ErrPoolClosed indicates the pool no longer accepts work
	ErrPoolClosed = errors.New("pool is closed")

	// ErrStopTimeout indicates outstanding tasks did not finish within the
	// configured stop timeout
	ErrStopTimeout = errors.New("timeout waiting for outstanding tasks")
)

// FailureKind classifies how a task failed.
type FailureKind int

const (
	// FailureBody means the task body returned an error
	FailureBody FailureKind = iota
	// FailurePanic means the task body panicked
	FailurePanic
	// FailurePropagated means a predecessor failed and the failure was
	// copied across the dependency edge
	FailurePropagated
)

// String returns the string representation of FailureKind
func (k FailureKind) String() string {
	switch k {
	case FailureBody:
		return "body"
	case FailurePanic:
		return "panic"
	case FailurePropagated:
		return "propagated"
	default:
		return "unknown"
	}
}

// Failure is the captured outcome of a failed task. The message text is
// fixed when the failure is first recorded and travels unchanged across any
// number of dependency edges, so a waiter always sees the original text.
type Failure struct {
	// Kind classifies the failure
	Kind FailureKind

	// Message is the original failure text, preserved verbatim
	Message string

	cause error
}

// Error implements the error interface. It returns the message exactly as
// it was recorded at the failing task.
func (f *Failure) Error() string {
	return f.Message
}

// Unwrap returns the underlying error, or the origin failure for a
// propagated one.
func (f *Failure) Unwrap() error {
	return f.cause
}

// NewFailure creates a failure with an explicit kind and message.
func NewFailure(kind FailureKind, message string, cause error) *Failure {
	return &Failure{Kind: kind, Message: message, cause: cause}
}

// BodyFailure records an error returned by a task body. If err already is a
// Failure it is reused so the message is not rewrapped.
func BodyFailure(err error) *Failure {
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: FailureBody, Message: err.Error(), cause: err}
}

// PanicFailure records a recovered panic value from a task body.
func PanicFailure(value any, cause error) *Failure {
	return &Failure{
		Kind:    FailurePanic,
		Message: fmt.Sprintf("panic: %v", value),
		cause:   cause,
	}
}

// Propagate copies a failure across a dependency edge. The message stays
// verbatim; the origin remains reachable through Unwrap.
func Propagate(origin *Failure) *Failure {
	return &Failure{Kind: FailurePropagated, Message: origin.Message, cause: origin}
}

// Origin walks a propagation chain back to the failure recorded at the task
// that actually failed.
func (f *Failure) Origin() *Failure {
	cur := f
	for cur.Kind == FailurePropagated {
		next, ok := cur.cause.(*Failure)
		if !ok {
			break
		}
		cur = next
	}
	return cur
}
