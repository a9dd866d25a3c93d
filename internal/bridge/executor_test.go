package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRunsInOrder(t *testing.T) {
	e := newExecutor()
	require.NoError(t, e.Start())
	defer e.Stop()

	var got []int
	for i := 0; i < 10; i++ {
		i := i
		require.NoError(t, e.Do(func(ctx context.Context) { got = append(got, i) }))
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestExecutorSerializesConcurrentCallers(t *testing.T) {
	e := newExecutor()
	require.NoError(t, e.Start())
	defer e.Stop()

	var active, maxActive int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = e.Do(func(ctx context.Context) {
				mu.Lock()
				active++
				if active > maxActive {
					maxActive = active
				}
				mu.Unlock()
				time.Sleep(time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, maxActive)
}

func TestExecutorRecoversPanics(t *testing.T) {
	e := newExecutor()
	require.NoError(t, e.Start())
	defer e.Stop()

	err := e.Do(func(ctx context.Context) { panic("boom") })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	assert.NoError(t, e.Do(func(ctx context.Context) {}), "executor must survive a panic")
}

func TestExecutorLifecycle(t *testing.T) {
	e := newExecutor()
	assert.Error(t, e.Stop(), "stop before start")
	require.NoError(t, e.Start())
	assert.Error(t, e.Start(), "double start")

	var ctx context.Context
	require.NoError(t, e.Do(func(c context.Context) { ctx = c }))
	require.NoError(t, e.Stop())

	assert.ErrorIs(t, e.Do(func(context.Context) {}), errExecutorStopped)
	assert.Error(t, ctx.Err(), "context is cancelled once stopped")
	assert.Error(t, e.Stop())
	assert.Error(t, e.Start())
}

func TestExecutorStopWaitsForCallInFlight(t *testing.T) {
	e := newExecutor()
	require.NoError(t, e.Start())

	entered := make(chan struct{})
	release := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		_ = e.Do(func(ctx context.Context) {
			close(entered)
			<-release
		})
		close(finished)
	}()
	<-entered

	stopped := make(chan struct{})
	go func() {
		_ = e.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a call was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(release)
	<-finished
	<-stopped
}
