package group

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/tunnelgroup/pkg/events"
	"github.com/cuemby/tunnelgroup/pkg/lifecycle"
	"github.com/cuemby/tunnelgroup/pkg/loader"
	"github.com/cuemby/tunnelgroup/pkg/log"
	"github.com/cuemby/tunnelgroup/pkg/metrics"
	"github.com/cuemby/tunnelgroup/pkg/registry"
	"github.com/cuemby/tunnelgroup/pkg/session"
	"github.com/cuemby/tunnelgroup/pkg/types"
	"github.com/cuemby/tunnelgroup/pkg/workerpool"
)

// RegisteredName is the name the group registers with a lifecycle manager
const RegisteredName = "tunnelgroup"

var (
	// ErrConfig is returned by Startup when the tunnel configuration cannot be loaded
	ErrConfig = errors.New("unable to load tunnel configuration")

	// ErrPersistence is returned when a tunnel config file cannot be written
	ErrPersistence = errors.New("unable to persist tunnel configuration")

	// ErrState is returned when an operation is not allowed in the current state
	ErrState = errors.New("invalid group state")
)

// Journal records migrations and state transitions
type Journal interface {
	loader.Journal
	RecordTransition(t *types.Transition) error
}

// Config holds configuration for creating a Group
type Config struct {
	// ConfigFile is the legacy monolithic config file
	ConfigFile string

	// ConfigDir holds per-tunnel files; defaults next to ConfigFile
	ConfigDir string

	// Migrate enables migration to, and loading from, ConfigDir
	Migrate bool

	// Authoritative hosts treat a missing config file as a startup failure
	Authoritative bool

	// Factory builds controllers from config records (required)
	Factory types.Factory

	// Manager, if set, is notified of every state change. Otherwise the
	// group adds its Shutdown to Hooks.
	Manager lifecycle.Manager
	Hooks   *lifecycle.Hooks

	// OnRelease is called during Shutdown so the host can create a new group
	OnRelease func()

	Journal Journal
	Broker  *events.Broker

	// KeepAlive is the worker pool idle timeout
	KeepAlive time.Duration

	// ShutdownGrace bounds how long Shutdown waits for pool workers
	ShutdownGrace time.Duration
}

// Group owns the tunnel controllers of one process: it loads them from
// config, starts and stops them, persists their config, and shares sessions
// and a worker pool between them.
type Group struct {
	// mu serializes load, unload, persistence and state transitions
	mu sync.Mutex

	stateMu sync.RWMutex
	state   types.State

	loaded bool
	cfg    Config

	loader   *loader.Loader
	registry *registry.Registry
	sessions *session.Registry

	poolMu   sync.Mutex
	pool     *workerpool.Pool
	poolDead bool

	logger zerolog.Logger
}

// New creates a group in the INITIALIZED state
func New(cfg Config) (*Group, error) {
	if cfg.Factory == nil {
		return nil, fmt.Errorf("controller factory is required")
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = workerpool.DefaultShutdownGrace
	}

	var journal loader.Journal
	if cfg.Journal != nil {
		journal = cfg.Journal
	}

	g := &Group{
		state: types.StateUninitialized,
		cfg:   cfg,
		loader: loader.New(loader.Options{
			ConfigFile: cfg.ConfigFile,
			ConfigDir:  cfg.ConfigDir,
			Migrate:    cfg.Migrate,
			Journal:    journal,
		}),
		registry: registry.New(),
		sessions: session.NewRegistry(cfg.Broker),
		logger:   log.WithComponent("group"),
	}

	g.changeState(types.StateInitialized, nil)
	return g, nil
}

// Name returns the name used with the lifecycle manager
func (g *Group) Name() string {
	return RegisteredName
}

// DisplayName returns a human readable name
func (g *Group) DisplayName() string {
	return RegisteredName
}

// State returns the current lifecycle state
func (g *Group) State() types.State {
	g.stateMu.RLock()
	defer g.stateMu.RUnlock()
	return g.state
}

// ConfigFile returns the absolute legacy config file path
func (g *Group) ConfigFile() string {
	return g.loader.ConfigFile()
}

// ConfigDir returns the absolute per-tunnel config directory
func (g *Group) ConfigDir() string {
	return g.loader.ConfigDir()
}

// Startup loads the controllers, starts those marked startOnLoad in the
// background and registers with the lifecycle manager. It only runs from
// INITIALIZED.
func (g *Group) Startup() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if st := g.State(); st != types.StateInitialized {
		return fmt.Errorf("%w: cannot start from %s", ErrState, st)
	}

	if err := g.loadLocked(); err != nil {
		if errors.Is(err, loader.ErrConfigNotFound) && !g.cfg.Authoritative {
			g.loaded = true
			g.logger.Warn().Err(err).Msg("No preconfigured tunnels")
		} else {
			err = fmt.Errorf("%w: %w", ErrConfig, err)
			g.changeState(types.StateStartFailed, err)
			return err
		}
	}

	g.startLocked()

	if g.cfg.Manager != nil {
		g.cfg.Manager.Register(g)
	} else if g.cfg.Hooks != nil {
		g.cfg.Hooks.Add(g.Shutdown)
	}
	return nil
}

// Shutdown destroys every controller and the worker pool. It is a no-op
// unless the group is STARTING or RUNNING, and the group cannot be started
// again afterwards.
func (g *Group) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if st := g.State(); st != types.StateStarting && st != types.StateRunning {
		return
	}

	g.changeState(types.StateStopping, nil)
	if g.cfg.Manager != nil {
		g.cfg.Manager.Unregister(g)
	}
	g.unloadLocked()
	if g.cfg.OnRelease != nil {
		g.cfg.OnRelease()
	}
	g.killPool()
	g.changeState(types.StateStopped, nil)
}

// Acquire records that owner uses session s
func (g *Group) Acquire(owner types.Controller, s types.Session) {
	g.sessions.Acquire(owner, s)
}

// Release records that owner no longer uses s, destroying s when no owner is left
func (g *Group) Release(owner types.Controller, s types.Session) {
	g.sessions.Release(owner, s)
}

// WorkerPool returns the shared worker pool, creating it on first use.
// Once the group has shut down the returned pool discards every task.
func (g *Group) WorkerPool() types.Executor {
	g.poolMu.Lock()
	defer g.poolMu.Unlock()

	if g.pool == nil {
		g.pool = workerpool.New(workerpool.Options{KeepAlive: g.cfg.KeepAlive})
		if g.poolDead {
			g.pool.Shutdown(g.cfg.ShutdownGrace)
		}
	}
	return g.pool
}

// killPool shuts the pool down for good; the stopped pool stays in place
func (g *Group) killPool() {
	g.poolMu.Lock()
	pool := g.pool
	g.poolDead = true
	g.poolMu.Unlock()

	if pool == nil {
		return
	}
	if !pool.Shutdown(g.cfg.ShutdownGrace) {
		g.logger.Warn().Msg("Worker pool did not drain before shutdown completed")
	}
}

// changeState must be called with g.mu held, except from New
func (g *Group) changeState(to types.State, cause error) {
	g.stateMu.Lock()
	from := g.state
	g.state = to
	g.stateMu.Unlock()

	metrics.SetState(to)
	metrics.UpdateComponent(metrics.ComponentGroup, to == types.StateRunning, string(to))

	ev := g.logger.Info()
	if cause != nil {
		ev = g.logger.Error().Err(cause)
	}
	ev.Str("from", string(from)).Str("to", string(to)).Msg("Group state changed")

	t := &types.Transition{Group: RegisteredName, From: from, To: to, At: time.Now()}
	if cause != nil {
		t.Error = cause.Error()
	}
	if g.cfg.Journal != nil {
		if err := g.cfg.Journal.RecordTransition(t); err != nil {
			g.logger.Warn().Err(err).Msg("Failed to journal state transition")
		}
	}

	if g.cfg.Manager != nil {
		g.cfg.Manager.Notify(g, to, "", cause)
	}

	meta := map[string]string{"from": string(from), "to": string(to)}
	if cause != nil {
		meta["error"] = cause.Error()
	}
	g.cfg.Broker.Publish(events.NewEvent(events.EventGroupState, "group "+string(to), meta))
}
