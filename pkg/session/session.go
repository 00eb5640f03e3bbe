package session

import (
	"sync"

	"github.com/cuemby/tunnelgroup/pkg/events"
	"github.com/cuemby/tunnelgroup/pkg/log"
	"github.com/cuemby/tunnelgroup/pkg/metrics"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

type entry struct {
	session types.Session
	owners  map[types.Controller]struct{}
}

// Registry reference-counts shared sessions. A session is destroyed when its
// last owner releases it.
type Registry struct {
	sessions map[string]*entry
	owners   int
	mu       sync.Mutex
	broker   *events.Broker
}

// NewRegistry creates an empty session registry. broker may be nil.
func NewRegistry(broker *events.Broker) *Registry {
	return &Registry{
		sessions: make(map[string]*entry),
		broker:   broker,
	}
}

// Acquire records owner as a user of s. Acquiring twice is a no-op.
func (r *Registry) Acquire(owner types.Controller, s types.Session) {
	if s == nil {
		return
	}
	id := s.ID()

	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		e = &entry{session: s, owners: make(map[types.Controller]struct{})}
		r.sessions[id] = e
	}
	if _, held := e.owners[owner]; !held {
		e.owners[owner] = struct{}{}
		r.owners++
	}
	count := len(e.owners)
	r.updateMetrics()
	r.mu.Unlock()

	logger := log.WithSession(id)
	logger.Debug().
		Str("owner", ownerName(owner)).
		Int("owners", count).
		Msg("Session acquired")
}

// Release drops owner from s. When no owners remain, or s was never
// acquired, the session is destroyed after the lock is released. Destroy
// errors are logged and not retried.
func (r *Registry) Release(owner types.Controller, s types.Session) {
	if s == nil {
		return
	}
	id := s.ID()
	logger := log.WithSession(id)

	r.mu.Lock()
	e, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		logger.Warn().
			Str("owner", ownerName(owner)).
			Msg("Releasing a session with no recorded owners, closing it")
		r.destroy(s)
		return
	}

	if _, held := e.owners[owner]; held {
		delete(e.owners, owner)
		r.owners--
	}
	remaining := len(e.owners)
	if remaining == 0 {
		delete(r.sessions, id)
	}
	r.updateMetrics()
	r.mu.Unlock()

	if remaining > 0 {
		logger.Debug().
			Str("owner", ownerName(owner)).
			Int("owners", remaining).
			Msg("Session released, still in use")
		return
	}

	logger.Info().Str("owner", ownerName(owner)).Msg("Last owner released session, closing it")
	r.destroy(e.session)
}

// Owners returns how many controllers hold the session with the given id
func (r *Registry) Owners(id string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[id]; ok {
		return len(e.owners)
	}
	return 0
}

// Len returns the number of owned sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

func (r *Registry) destroy(s types.Session) {
	if err := s.Destroy(); err != nil {
		metrics.SessionCloseErrors.Inc()
		logger := log.WithSession(s.ID())
		logger.Error().Err(err).Msg("Failed to close session")
		return
	}
	r.broker.Publish(events.NewEvent(events.EventSessionClosed, "session closed", map[string]string{
		"session_id": s.ID(),
	}))
}

// updateMetrics must be called with r.mu held
func (r *Registry) updateMetrics() {
	metrics.SessionsActive.Set(float64(len(r.sessions)))
	metrics.SessionOwners.Set(float64(r.owners))
}

func ownerName(c types.Controller) string {
	if c == nil {
		return ""
	}
	return c.Name()
}
