package pool_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/beltegeuse/nanothread/internal/testutils"
	"github.com/beltegeuse/nanothread/pkg/pool"
	"github.com/beltegeuse/nanothread/pkg/types"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name        string
		config      *pool.Config
		expectError bool
	}{
		{
			name:        "nil config should use default",
			config:      nil,
			expectError: false,
		},
		{
			name:        "valid config",
			config:      &pool.Config{Workers: 4, QueueSize: 32},
			expectError: false,
		},
		{
			name:        "zero workers should error",
			config:      &pool.Config{Workers: 0, QueueSize: 32},
			expectError: true,
		},
		{
			name:        "negative workers should error",
			config:      &pool.Config{Workers: -1, QueueSize: 32},
			expectError: true,
		},
		{
			name:        "zero queue size should error",
			config:      &pool.Config{Workers: 4, QueueSize: 0},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := pool.New(tt.config)
			if tt.expectError {
				assert.Error(t, err)
				assert.Nil(t, p)
			} else {
				assert.NoError(t, err)
				assert.NotNil(t, p)
			}
		})
	}
}

func TestPool_StartStop(t *testing.T) {
	p, err := pool.New(&pool.Config{Workers: 2, QueueSize: 8})
	require.NoError(t, err)

	// task creation before start is rejected
	_, err = p.NewTask(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, types.ErrPoolNotStarted)

	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.Equal(t, 2, p.Size())

	// repeated start
	assert.Error(t, p.Start(context.Background()))

	require.NoError(t, p.Stop())
	assert.False(t, p.IsRunning())

	// task creation after stop is rejected
	_, err = p.NewTask(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, types.ErrPoolClosed)
}

func TestPool_StopWaitsForOutstandingWork(t *testing.T) {
	p := testutils.StartPool(t, &pool.Config{Workers: 2, QueueSize: 8})

	var done atomic.Int32
	for i := 0; i < 6; i++ {
		task, err := p.NewTask(func(ctx context.Context) error {
			time.Sleep(5 * time.Millisecond)
			done.Add(1)
			return nil
		})
		require.NoError(t, err)
		task.Release()
	}

	require.NoError(t, p.Stop())
	assert.Equal(t, int32(6), done.Load())
}

func TestPool_StopRunsDependentsToCompletion(t *testing.T) {
	p := testutils.StartPool(t, &pool.Config{Workers: 2, QueueSize: 8})

	var order atomic.Int32
	a, err := p.NewTask(func(ctx context.Context) error {
		time.Sleep(5 * time.Millisecond)
		order.CompareAndSwap(0, 1)
		return nil
	})
	require.NoError(t, err)
	b, err := p.NewTask(func(ctx context.Context) error {
		order.CompareAndSwap(1, 2)
		return nil
	}, a)
	require.NoError(t, err)
	a.Release()
	b.Release()

	// b was still pending when Stop began, yet it must run
	require.NoError(t, p.Stop())
	assert.Equal(t, int32(2), order.Load())
}

func TestPool_StopTimeout(t *testing.T) {
	mock := testutils.NewMockClock(t)
	p := testutils.StartPool(t, &pool.Config{
		Workers:     1,
		QueueSize:   4,
		StopTimeout: 10 * time.Second,
		Clock:       testutils.NewClockWrapper(mock),
	})

	release := make(chan struct{})
	task, err := p.NewTask(func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	trap := mock.Trap().NewTimer()

	errCh := make(chan error, 1)
	go func() { errCh <- p.Stop() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	call := trap.MustWait(ctx)
	call.Release(ctx)
	mock.Advance(10 * time.Second).MustWait(ctx)

	stopErr := <-errCh
	trap.Close()
	assert.ErrorIs(t, stopErr, types.ErrStopTimeout)

	// unblock and retry: the second Stop drains normally
	close(release)
	require.NoError(t, task.WaitAndRelease())
	require.NoError(t, p.Stop())
}

func TestPool_TaskCreationDuringStart(t *testing.T) {
	p, err := pool.New(&pool.Config{Workers: 2, QueueSize: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	// a creator spinning on ErrPoolNotStarted observes the running state
	// the instant it is published; the pool context must already be
	// usable at that point
	done := make(chan error, 1)
	go func() {
		for {
			task, err := p.NewTask(func(ctx context.Context) error { return nil })
			if errors.Is(err, types.ErrPoolNotStarted) {
				continue
			}
			if err != nil {
				done <- err
				return
			}
			done <- task.WaitAndRelease()
			return
		}
	}()

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, <-done)
}

func TestPool_CloseRetryAfterStopTimeout(t *testing.T) {
	mock := testutils.NewMockClock(t)
	p, err := pool.New(&pool.Config{
		Workers:     1,
		QueueSize:   4,
		StopTimeout: 10 * time.Second,
		Clock:       testutils.NewClockWrapper(mock),
	})
	require.NoError(t, err)
	require.NoError(t, p.Start(context.Background()))

	release := make(chan struct{})
	task, err := p.NewTask(func(ctx context.Context) error {
		<-release
		return nil
	})
	require.NoError(t, err)

	trap := mock.Trap().NewTimer()

	errCh := make(chan error, 1)
	go func() { errCh <- p.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	call := trap.MustWait(ctx)
	call.Release(ctx)
	mock.Advance(10 * time.Second).MustWait(ctx)

	closeErr := <-errCh
	trap.Close()
	assert.ErrorIs(t, closeErr, types.ErrStopTimeout)

	// a Close that timed out can be retried once the work has drained
	close(release)
	require.NoError(t, task.WaitAndRelease())
	require.NoError(t, p.Close())

	_, err = p.NewTask(func(ctx context.Context) error { return nil })
	assert.ErrorIs(t, err, types.ErrPoolClosed)
	assert.NoError(t, p.Close())
}

func TestPool_Resize(t *testing.T) {
	p := testutils.StartPool(t, &pool.Config{Workers: 2, QueueSize: 8})

	require.NoError(t, p.Resize(5))
	assert.Equal(t, 5, p.Size())

	require.NoError(t, p.Resize(1))
	assert.Equal(t, 1, p.Size())

	// the shrunken pool still executes work
	task, err := p.NewTask(func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, task.WaitAndRelease())

	assert.Error(t, p.Resize(0))
	assert.Error(t, p.Resize(-3))
}

func TestPool_Stats(t *testing.T) {
	p := testutils.StartPool(t, &pool.Config{Workers: 3, QueueSize: 17})

	stats := p.Stats()
	assert.Equal(t, 3, stats.Workers)
	assert.Equal(t, 17, stats.QueueCapacity)
	assert.Equal(t, 0, stats.QueueDepth)
}

func TestPool_SubmitBurstBeyondQueueCapacity(t *testing.T) {
	// more ready tasks than the queue can buffer: creation must not block
	p := testutils.StartPool(t, &pool.Config{Workers: 2, QueueSize: 4})

	var done atomic.Int32
	tasks := make([]*pool.Task, 0, 64)
	for i := 0; i < 64; i++ {
		task, err := p.NewTask(func(ctx context.Context) error {
			done.Add(1)
			return nil
		})
		require.NoError(t, err)
		tasks = append(tasks, task)
	}
	for _, task := range tasks {
		require.NoError(t, task.WaitAndRelease())
	}
	assert.Equal(t, int32(64), done.Load())
}

func TestPool_ConcurrentSubmitters(t *testing.T) {
	p := testutils.StartPool(t, &pool.Config{Workers: 4, QueueSize: 64})

	var total atomic.Int64
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 50; j++ {
				task, err := p.NewTask(func(ctx context.Context) error {
					total.Add(1)
					return nil
				})
				if err != nil {
					return err
				}
				if err := task.WaitAndRelease(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int64(400), total.Load())
}

func TestPool_FailuresDoNotStopWorkers(t *testing.T) {
	p := testutils.StartPool(t, &pool.Config{Workers: 2, QueueSize: 8})

	for i := 0; i < 10; i++ {
		task, err := p.NewTask(func(ctx context.Context) error {
			return errors.New("always failing")
		})
		require.NoError(t, err)
		require.Error(t, task.WaitAndRelease())
	}

	task, err := p.NewTask(func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, task.WaitAndRelease())

	stats := p.Stats()
	assert.Equal(t, int64(1), stats.TotalProcessed)
	assert.Equal(t, int64(10), stats.TotalFailed)
}

func TestDefault_SharedInstance(t *testing.T) {
	p := pool.Default()
	require.NotNil(t, p)
	assert.True(t, p.IsRunning())
	assert.Same(t, p, pool.Default())

	task, err := p.NewTask(func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	assert.NoError(t, task.WaitAndRelease())
}
