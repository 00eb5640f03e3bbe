package lifecycle

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/tunnelgroup/pkg/events"
	"github.com/cuemby/tunnelgroup/pkg/log"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

// App is something whose lifecycle a Manager tracks
type App interface {
	Name() string
	DisplayName() string
	State() types.State
	Startup() error
	Shutdown()
}

// Manager is the host-side registry of running apps. Apps register once
// running, report every state change through Notify and unregister when
// they shut down.
type Manager interface {
	Register(app App) bool
	Notify(app App, state types.State, message string, err error)
	Unregister(app App)
}

// Status is the last state an app reported
type Status struct {
	Name    string
	State   types.State
	Message string
	Error   string
}

// AppManager is an in-process Manager that records the latest state of each
// app and republishes notifications on an event broker.
type AppManager struct {
	registered map[string]App
	status     map[string]Status
	mu         sync.RWMutex
	broker     *events.Broker
	logger     zerolog.Logger
}

// NewAppManager creates a manager. broker may be nil.
func NewAppManager(broker *events.Broker) *AppManager {
	return &AppManager{
		registered: make(map[string]App),
		status:     make(map[string]Status),
		broker:     broker,
		logger:     log.WithComponent("lifecycle"),
	}
}

// Register adds app. It returns false if an app with the same name is
// already registered.
func (m *AppManager) Register(app App) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.registered[app.Name()]; exists {
		m.logger.Warn().Str("app", app.Name()).Msg("App already registered")
		return false
	}
	m.registered[app.Name()] = app
	m.logger.Debug().Str("app", app.Name()).Msg("App registered")
	return true
}

// Notify records a state change and publishes it
func (m *AppManager) Notify(app App, state types.State, message string, err error) {
	st := Status{Name: app.Name(), State: state, Message: message}
	if err != nil {
		st.Error = err.Error()
	}

	m.mu.Lock()
	m.status[app.Name()] = st
	m.mu.Unlock()

	ev := m.logger.Debug()
	if state == types.StateStartFailed {
		ev = m.logger.Error()
	}
	ev.Str("app", app.Name()).Str("state", string(state)).Str("message", message).Err(err).Msg("App state changed")

	meta := map[string]string{"app": app.Name(), "state": string(state)}
	if st.Error != "" {
		meta["error"] = st.Error
	}
	m.broker.Publish(events.NewEvent(events.EventAppState, message, meta))
}

// Unregister removes app
func (m *AppManager) Unregister(app App) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.registered, app.Name())
	m.logger.Debug().Str("app", app.Name()).Msg("App unregistered")
}

// Registered reports whether an app with the given name is registered
func (m *AppManager) Registered(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.registered[name]
	return ok
}

// Status returns the last state reported by the named app
func (m *AppManager) Status(name string) (Status, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.status[name]
	return st, ok
}

// ShutdownAll shuts down every registered app. Apps are expected to
// unregister themselves while shutting down.
func (m *AppManager) ShutdownAll() {
	m.mu.RLock()
	apps := make([]App, 0, len(m.registered))
	for _, app := range m.registered {
		apps = append(apps, app)
	}
	m.mu.RUnlock()

	for _, app := range apps {
		m.logger.Info().Str("app", app.Name()).Msg("Shutting down app")
		app.Shutdown()
	}
}

// Hooks is the host's list of shutdown tasks, used by apps that run without
// a Manager.
type Hooks struct {
	tasks []func()
	ran   bool
	mu    sync.Mutex
}

// NewHooks creates an empty hook list
func NewHooks() *Hooks {
	return &Hooks{}
}

// Add registers a task to run at shutdown. Tasks added after Run are ignored.
func (h *Hooks) Add(task func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ran {
		return
	}
	h.tasks = append(h.tasks, task)
}

// Run executes every task once, most recently added first
func (h *Hooks) Run() {
	h.mu.Lock()
	if h.ran {
		h.mu.Unlock()
		return
	}
	h.ran = true
	tasks := h.tasks
	h.tasks = nil
	h.mu.Unlock()

	for i := len(tasks) - 1; i >= 0; i-- {
		tasks[i]()
	}
}

// Len returns the number of pending tasks
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.tasks)
}
