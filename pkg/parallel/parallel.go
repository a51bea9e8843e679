package parallel

import (
	"context"
	"errors"

	"golang.org/x/exp/constraints"

	"github.com/beltegeuse/nanothread/pkg/pool"
)

// ErrNilFunc indicates a parallel loop was given a nil function
var ErrNilFunc = errors.New("nil loop function")

// Func is the loop body invoked once per chunk.
type Func[T constraints.Integer] func(ctx context.Context, r BlockedRange[T]) error

// Option configures a parallel loop
type Option func(*config)

type config struct {
	pool *pool.Pool
	deps []*pool.Task
}

// WithPool runs the loop on p instead of the process-wide default pool.
func WithPool(p *pool.Pool) Option {
	return func(c *config) { c.pool = p }
}

// WithDependencies makes every chunk task wait for the given tasks before
// it can run. A failed dependency fails every chunk without running it.
func WithDependencies(deps ...*pool.Task) Option {
	return func(c *config) { c.deps = deps }
}

func buildConfig(opts []Option) *config {
	c := &config{}
	for _, opt := range opts {
		opt(c)
	}
	if c.pool == nil {
		c.pool = pool.Default()
	}
	return c
}

// For executes fn over r, one task per chunk, and blocks until every chunk
// has finished; the calling goroutine works off ready tasks while it
// waits. Chunks already submitted always run to completion, even after
// another chunk has failed. If one or more chunks failed, the failure of
// the chunk with the lowest range offset is returned.
func For[T constraints.Integer](r BlockedRange[T], fn Func[T], opts ...Option) error {
	if fn == nil {
		return ErrNilFunc
	}
	cfg := buildConfig(opts)

	chunks := r.Split()
	tasks := make([]*pool.Task, 0, len(chunks))
	var submitErr error
	for _, c := range chunks {
		c := c
		t, err := cfg.pool.NewTask(func(ctx context.Context) error {
			return fn(ctx, c)
		}, cfg.deps...)
		if err != nil {
			submitErr = err
			break
		}
		tasks = append(tasks, t)
	}

	// chunks are waited on in ascending range order, so the first failure
	// observed is the lowest-offset one
	var first error
	for _, t := range tasks {
		if err := t.WaitAndRelease(); err != nil && first == nil {
			first = err
		}
	}
	if submitErr != nil {
		return submitErr
	}
	return first
}

// ForAsync is the non-blocking version of For. Every chunk task is created
// with the loop's dependencies as predecessors. The returned join task
// completes once all chunks have; it is both a future (WaitAndRelease) and
// a valid dependency for later work. The caller owns one reference on it.
func ForAsync[T constraints.Integer](r BlockedRange[T], fn Func[T], opts ...Option) (*pool.Task, error) {
	if fn == nil {
		return nil, ErrNilFunc
	}
	cfg := buildConfig(opts)

	chunks := r.Split()
	if len(chunks) == 0 {
		// nothing to run: the join still waits for the dependencies
		return cfg.pool.NewTask(nil, cfg.deps...)
	}

	tasks := make([]*pool.Task, 0, len(chunks))
	for _, c := range chunks {
		c := c
		t, err := cfg.pool.NewTask(func(ctx context.Context) error {
			return fn(ctx, c)
		}, cfg.deps...)
		if err != nil {
			for _, prev := range tasks {
				prev.Release()
			}
			return nil, err
		}
		tasks = append(tasks, t)
	}

	join, err := cfg.pool.NewTask(nil, tasks...)
	for _, t := range tasks {
		t.Release()
	}
	if err != nil {
		return nil, err
	}
	return join, nil
}
