/*
Package metrics provides Prometheus metrics and health reporting for a
tunnel group process.

Every metric is registered with the default Prometheus registry at package
init and exposed through Handler, which cmd/tunnelgroup mounts at /metrics.
Components update the metrics inline; the Collector additionally samples
controller states on a ticker.

# Architecture

	┌──────────────────── METRICS ──────────────────────────────┐
	│                                                            │
	│  group ──────▶ tunnelgroup_state, controllers_total        │
	│  loader ─────▶ config_load_duration, migration_files       │
	│  group ──────▶ config_writes_total{op,result}              │
	│  session ────▶ sessions_active, session_owners             │
	│  workerpool ─▶ workers_active, workers_idle, tasks_total   │
	│  Collector ──▶ tunnelgroup_tunnels{type,state}             │
	│                         │                                  │
	│                         ▼                                  │
	│              promhttp.Handler() at /metrics                │
	└────────────────────────────────────────────────────────────┘

# Metrics Catalog

Group:
  - tunnelgroup_state{state}: 1 for the current lifecycle state, 0 otherwise
  - tunnelgroup_controllers_total: controllers in the registry
  - tunnelgroup_tunnels{type,state}: controllers by type and controller state

Configuration:
  - tunnelgroup_config_load_duration_seconds: histogram of config loads
  - tunnelgroup_config_writes_total{op,result}: save/remove file writes
  - tunnelgroup_migration_files_total{result}: per-tunnel files written by migration

Sessions:
  - tunnelgroup_sessions_active: shared sessions with at least one owner
  - tunnelgroup_session_owners: ownerships across all sessions
  - tunnelgroup_session_close_errors_total: failed session destroys

Worker pool:
  - tunnelgroup_workers_active / tunnelgroup_workers_idle
  - tunnelgroup_worker_tasks_total{result}: executed, discarded, panicked

# Health

The health checker keeps per-component health. GetHealth is unhealthy if
any registered component is; GetReadiness is ready once every critical
component (by default only "group", which is healthy while RUNNING) is
registered and healthy. HealthHandler and ReadyHandler serve both as JSON.

# Usage

Timing an operation:

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ConfigLoadDuration)

Sampling controllers:

	c := metrics.NewCollector(source, metrics.DefaultCollectInterval)
	c.Start()
	defer c.Stop()
*/
package metrics
