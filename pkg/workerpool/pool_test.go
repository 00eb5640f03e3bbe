package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitRunsTask(t *testing.T) {
	p := New(Options{})
	defer p.Shutdown(time.Second)

	done := make(chan struct{})
	require.True(t, p.Submit(func(ctx context.Context) { close(done) }))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task did not run")
	}
}

func TestNoQueueingSpawnsWorkers(t *testing.T) {
	p := New(Options{})
	defer p.Shutdown(time.Second)

	const n = 10
	release := make(chan struct{})
	var started sync.WaitGroup
	started.Add(n)

	for i := 0; i < n; i++ {
		require.True(t, p.Submit(func(ctx context.Context) {
			started.Done()
			<-release
		}))
	}

	// Every blocked task must have its own worker.
	waitOrFail(t, &started)
	assert.Equal(t, n, p.Active())
	close(release)
}

func TestIdleWorkerIsReused(t *testing.T) {
	p := New(Options{KeepAlive: time.Minute})
	defer p.Shutdown(time.Second)

	first := make(chan struct{})
	p.Submit(func(ctx context.Context) { close(first) })
	<-first

	require.Eventually(t, func() bool { return p.Idle() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	second := make(chan struct{})
	p.Submit(func(ctx context.Context) { close(second) })
	<-second

	assert.Equal(t, 1, p.Active())
}

func TestIdleWorkersExpire(t *testing.T) {
	p := New(Options{KeepAlive: 20 * time.Millisecond})
	defer p.Shutdown(time.Second)

	done := make(chan struct{})
	p.Submit(func(ctx context.Context) { close(done) })
	<-done

	assert.Eventually(t, func() bool { return p.Active() == 0 }, time.Second, 5*time.Millisecond)
}

func TestShutdownDiscardsAndCancels(t *testing.T) {
	p := New(Options{})

	var cancelled atomic.Bool
	started := make(chan struct{})
	p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		cancelled.Store(true)
	})
	<-started

	assert.True(t, p.Shutdown(time.Second))
	assert.True(t, cancelled.Load())
	assert.Equal(t, 0, p.Active())

	var ran atomic.Bool
	assert.False(t, p.Submit(func(ctx context.Context) { ran.Store(true) }))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, ran.Load())

	// Shutting down twice is harmless.
	assert.True(t, p.Shutdown(time.Second))
}

func TestShutdownGraceExpires(t *testing.T) {
	p := New(Options{})

	block := make(chan struct{})
	defer close(block)
	started := make(chan struct{})
	p.Submit(func(ctx context.Context) {
		close(started)
		<-block
	})
	<-started

	assert.False(t, p.Shutdown(20*time.Millisecond))
}

func TestPanicDoesNotKillWorker(t *testing.T) {
	p := New(Options{KeepAlive: time.Minute})
	defer p.Shutdown(time.Second)

	p.Submit(func(ctx context.Context) { panic("boom") })
	require.Eventually(t, func() bool { return p.Idle() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	p.Submit(func(ctx context.Context) { close(done) })
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive panic")
	}
	assert.Equal(t, 1, p.Active())
}

func TestSubmitNil(t *testing.T) {
	p := New(Options{})
	defer p.Shutdown(time.Second)
	assert.False(t, p.Submit(nil))
}

func waitOrFail(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	ch := make(chan struct{})
	go func() {
		wg.Wait()
		close(ch)
	}()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}
}
