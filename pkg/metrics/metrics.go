package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cuemby/tunnelgroup/pkg/types"
)

var (
	// Group metrics
	GroupState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tunnelgroup_state",
			Help: "Current lifecycle state of the tunnel group (1 = current)",
		},
		[]string{"state"},
	)

	ControllersTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunnelgroup_controllers_total",
			Help: "Number of tunnel controllers in the registry",
		},
	)

	TunnelsByState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tunnelgroup_tunnels",
			Help: "Tunnel controllers by type and controller state, sampled periodically",
		},
		[]string{"type", "state"},
	)

	ConfigLoadDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tunnelgroup_config_load_duration_seconds",
			Help:    "Time taken to load tunnel configuration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	ConfigWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnelgroup_config_writes_total",
			Help: "Per-tunnel config file writes by operation and result",
		},
		[]string{"op", "result"},
	)

	MigrationFilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnelgroup_migration_files_total",
			Help: "Per-tunnel files written while migrating a legacy config file",
		},
		[]string{"result"},
	)

	// Session metrics
	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunnelgroup_sessions_active",
			Help: "Shared sessions with at least one owner",
		},
	)

	SessionOwners = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunnelgroup_session_owners",
			Help: "Total controller ownerships across all shared sessions",
		},
	)

	SessionCloseErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tunnelgroup_session_close_errors_total",
			Help: "Failures destroying a released session",
		},
	)

	// Worker pool metrics
	WorkersActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunnelgroup_workers_active",
			Help: "Worker goroutines currently alive in the shared pool",
		},
	)

	WorkersIdle = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tunnelgroup_workers_idle",
			Help: "Worker goroutines waiting for a handoff",
		},
	)

	WorkerTasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tunnelgroup_worker_tasks_total",
			Help: "Units of work submitted to the pool by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(GroupState)
	prometheus.MustRegister(ControllersTotal)
	prometheus.MustRegister(TunnelsByState)
	prometheus.MustRegister(ConfigLoadDuration)
	prometheus.MustRegister(ConfigWritesTotal)
	prometheus.MustRegister(MigrationFilesTotal)
	prometheus.MustRegister(SessionsActive)
	prometheus.MustRegister(SessionOwners)
	prometheus.MustRegister(SessionCloseErrors)
	prometheus.MustRegister(WorkersActive)
	prometheus.MustRegister(WorkersIdle)
	prometheus.MustRegister(WorkerTasksTotal)
}

// SetState marks state as the current group state
func SetState(state types.State) {
	for _, s := range types.AllStates {
		v := 0.0
		if s == state {
			v = 1
		}
		GroupState.WithLabelValues(string(s)).Set(v)
	}
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
