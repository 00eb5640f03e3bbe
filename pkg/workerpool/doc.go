/*
Package workerpool provides the shared pool tunnels use for connection
handlers.

The pool keeps no idle core and has no upper bound. Submit hands a task to a
waiting worker or starts a new one; nothing is queued. Workers that stay
idle for the keep-alive window (two minutes by default) exit.

# Architecture

	Submit(task)
	     │
	     ├── pool shut down? ──▶ discard, return false
	     │
	     ├── idle worker waiting on handoff? ──▶ hand task over
	     │
	     └── otherwise ──▶ go worker(task)

	worker loop:
	  run task (panics recovered)
	     │
	     ▼
	  wait for next handoff ──┬── task      ──▶ run it
	                          ├── keep-alive ──▶ exit
	                          └── ctx done   ──▶ exit

The handoff channel is unbuffered, so a task is only ever taken by a worker
that is already waiting.

# Shutdown

Shutdown switches the pool to discard mode, cancels the context passed to
running tasks and waits at most the grace period for workers to return.
It reports whether every worker exited in time. Tasks that ignore their
context keep running after Shutdown returns. Calling Shutdown again is a
no-op, and Submit on a shut-down pool always returns false.

# Panics

A panicking task is recovered with conc's panics.Catcher. The panic value
and stack are logged, the tunnelgroup_worker_tasks_total{result="panicked"}
counter is bumped, and the worker goes back to waiting for work.

# Usage

	pool := workerpool.New(workerpool.Options{KeepAlive: time.Minute})

	ok := pool.Submit(func(ctx context.Context) {
		relay(ctx, local, remote)
	})
	if !ok {
		local.Close()
	}

	if !pool.Shutdown(5 * time.Second) {
		log.Logger.Warn().Msg("workers still running")
	}

# Metrics

  - tunnelgroup_workers_active: live worker goroutines
  - tunnelgroup_workers_idle: workers waiting for a handoff
  - tunnelgroup_worker_tasks_total{result}: executed, panicked, discarded
*/
package workerpool
