package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arunvm123/flashdeal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	p := NewPool(4, 100, logger.Discard())
	p.Start()

	var ran int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		require.NoError(t, p.Submit(func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt64(&ran, 1)
		}))
	}
	wg.Wait()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int64(50), atomic.LoadInt64(&ran))

	processed, active := p.Stats()
	assert.Equal(t, int64(50), processed)
	assert.Equal(t, int64(0), active)
}

func TestPoolRejectsWhenQueueFull(t *testing.T) {
	p := NewPool(1, 1, logger.Discard())
	p.Start()

	release := make(chan struct{})
	started := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) {
		close(started)
		<-release
	}))
	<-started

	// worker busy, queue slot free
	require.NoError(t, p.Submit(func(ctx context.Context) {}))

	// the dispatcher may already hold the queued task while waiting for a
	// worker, so fill until the queue reports full
	var err error
	for i := 0; i < 3 && err == nil; i++ {
		err = p.Submit(func(ctx context.Context) {})
	}
	assert.ErrorIs(t, err, ErrQueueFull)

	close(release)
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolSurvivesPanickingTask(t *testing.T) {
	p := NewPool(1, 10, logger.Discard())
	p.Start()

	done := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) { panic("boom") }))
	require.NoError(t, p.Submit(func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task after panic never ran")
	}
	require.NoError(t, p.Shutdown(context.Background()))
}

func TestPoolShutdownDrainsQueue(t *testing.T) {
	p := NewPool(2, 100, logger.Discard())
	p.Start()

	var ran int64
	for i := 0; i < 20; i++ {
		require.NoError(t, p.Submit(func(ctx context.Context) {
			time.Sleep(time.Millisecond)
			atomic.AddInt64(&ran, 1)
		}))
	}

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, int64(20), atomic.LoadInt64(&ran))
	assert.ErrorIs(t, p.Submit(func(ctx context.Context) {}), ErrPoolClosed)
}

func TestPoolShutdownTimeoutCancelsContext(t *testing.T) {
	p := NewPool(1, 1, logger.Discard())
	p.Start()

	cancelled := make(chan struct{})
	require.NoError(t, p.Submit(func(ctx context.Context) {
		<-ctx.Done()
		close(cancelled)
	}))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("running task was not cancelled")
	}
}
