package workerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/panics"

	"github.com/cuemby/tunnelgroup/pkg/log"
	"github.com/cuemby/tunnelgroup/pkg/metrics"
)

const (
	// DefaultKeepAlive is how long an idle worker waits for work before exiting
	DefaultKeepAlive = 2 * time.Minute

	// DefaultShutdownGrace bounds how long Shutdown waits for cancelled workers
	DefaultShutdownGrace = 5 * time.Second
)

// Options configures a Pool
type Options struct {
	KeepAlive time.Duration
}

// Pool runs tasks on goroutines with no queue. A task is handed to an idle
// worker if one is waiting, otherwise a new worker is started for it. Idle
// workers exit after the keep-alive window.
type Pool struct {
	handoff   chan func(ctx context.Context)
	keepAlive time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	discard bool
	wg      sync.WaitGroup

	active atomic.Int64
	idle   atomic.Int64

	logger zerolog.Logger
}

// New creates a pool with no workers
func New(opts Options) *Pool {
	keepAlive := opts.KeepAlive
	if keepAlive <= 0 {
		keepAlive = DefaultKeepAlive
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		handoff:   make(chan func(ctx context.Context)),
		keepAlive: keepAlive,
		ctx:       ctx,
		cancel:    cancel,
		logger:    log.WithComponent("workerpool"),
	}
}

// Submit runs task on the pool. It returns false, dropping the task, once
// the pool has been shut down.
func (p *Pool) Submit(task func(ctx context.Context)) bool {
	if task == nil {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.discard {
		metrics.WorkerTasksTotal.WithLabelValues("discarded").Inc()
		p.logger.Debug().Msg("Pool is shut down, discarding task")
		return false
	}

	select {
	case p.handoff <- task:
	default:
		p.wg.Add(1)
		go p.worker(task)
	}
	return true
}

// Shutdown discards further submissions, cancels the context given to
// running tasks and waits up to grace for workers to exit. It reports
// whether every worker exited in time.
func (p *Pool) Shutdown(grace time.Duration) bool {
	p.mu.Lock()
	if p.discard {
		p.mu.Unlock()
		return true
	}
	p.discard = true
	p.mu.Unlock()

	p.cancel()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Debug().Msg("Worker pool stopped")
		return true
	case <-time.After(grace):
		p.logger.Warn().
			Int64("active", p.active.Load()).
			Dur("grace", grace).
			Msg("Workers still running after shutdown grace period")
		return false
	}
}

// Active returns the number of live workers
func (p *Pool) Active() int {
	return int(p.active.Load())
}

// Idle returns the number of workers waiting for a task
func (p *Pool) Idle() int {
	return int(p.idle.Load())
}

func (p *Pool) worker(task func(ctx context.Context)) {
	defer p.wg.Done()

	metrics.WorkersActive.Set(float64(p.active.Add(1)))
	defer func() {
		metrics.WorkersActive.Set(float64(p.active.Add(-1)))
	}()

	timer := time.NewTimer(p.keepAlive)
	defer timer.Stop()

	for {
		p.run(task)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(p.keepAlive)

		metrics.WorkersIdle.Set(float64(p.idle.Add(1)))
		select {
		case task = <-p.handoff:
			metrics.WorkersIdle.Set(float64(p.idle.Add(-1)))
		case <-timer.C:
			metrics.WorkersIdle.Set(float64(p.idle.Add(-1)))
			return
		case <-p.ctx.Done():
			metrics.WorkersIdle.Set(float64(p.idle.Add(-1)))
			return
		}
	}
}

func (p *Pool) run(task func(ctx context.Context)) {
	var pc panics.Catcher
	pc.Try(func() { task(p.ctx) })

	if r := pc.Recovered(); r != nil {
		metrics.WorkerTasksTotal.WithLabelValues("panicked").Inc()
		p.logger.Error().
			Interface("panic", r.Value).
			Str("stack", string(r.Stack)).
			Msg("Recovered panic in pool task")
		return
	}
	metrics.WorkerTasksTotal.WithLabelValues("executed").Inc()
}
