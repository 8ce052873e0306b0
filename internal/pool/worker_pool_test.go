package pool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsAllTasks(t *testing.T) {
	wp := New(4)
	defer wp.Close()

	var counter atomic.Int64
	var wg sync.WaitGroup
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		wg.Add(1)
		require.NoError(t, wp.Submit(ctx, func() {
			defer wg.Done()
			counter.Add(1)
		}))
	}
	wg.Wait()

	assert.Equal(t, int64(100), counter.Load())
}

func TestWorkerPoolDefaultSize(t *testing.T) {
	wp := New(0)
	defer wp.Close()
	assert.Greater(t, wp.NumWorkers(), 0)
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	wp := New(2)
	wp.Close()

	err := wp.Submit(context.Background(), func() {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWorkerPoolCloseWaitsForInflight(t *testing.T) {
	wp := New(2)

	var done atomic.Bool
	require.NoError(t, wp.Submit(context.Background(), func() {
		time.Sleep(50 * time.Millisecond)
		done.Store(true)
	}))

	wp.Close()
	assert.True(t, done.Load(), "Close must wait for running tasks")
}

func TestWorkerPoolCloseIdempotent(t *testing.T) {
	wp := New(1)
	wp.Close()
	wp.Close()
}

func TestWorkerPoolContextCancellation(t *testing.T) {
	wp := New(1)
	defer wp.Close()

	// Fill the pool with a blocking task plus a full buffer, then a
	// cancelled submit must fail instead of hanging.
	release := make(chan struct{})
	ctx := context.Background()
	require.NoError(t, wp.Submit(ctx, func() { <-release }))
	for i := 0; i < 2; i++ {
		require.NoError(t, wp.Submit(ctx, func() {}))
	}

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := wp.Submit(cancelled, func() {})
	assert.ErrorIs(t, err, context.Canceled)

	close(release)
}
