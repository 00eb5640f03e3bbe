package tunnel

import (
	"io"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/yamux"

	"github.com/cuemby/tunnelgroup/pkg/log"
)

// connSet is a set of closers that can be closed all at once. Once
// closed it refuses new members.
type connSet struct {
	mu     sync.Mutex
	conns  map[io.Closer]struct{}
	closed bool
}

func newConnSet() *connSet {
	return &connSet{conns: make(map[io.Closer]struct{})}
}

// add tracks c. It closes c and returns false if the set is already closed.
func (s *connSet) add(c io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		c.Close()
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *connSet) remove(c io.Closer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}

func (s *connSet) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

func (s *connSet) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// closeAll closes every member. It returns false if the set was already closed.
func (s *connSet) closeAll() bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for c := range conns {
		c.Close()
	}
	return true
}

// Session is a transport session: an optional yamux session to a remote
// tunnel server plus the connections relayed through it.
type Session struct {
	id    string
	mux   *yamux.Session
	conns *connSet
}

func newSession(id string, mux *yamux.Session) *Session {
	return &Session{
		id:    id,
		mux:   mux,
		conns: newConnSet(),
	}
}

// dialSession connects to a tunnel server and starts a yamux client on the connection
func dialSession(id, addr string) (*Session, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux, err := yamux.Client(conn, muxConfig())
	if err != nil {
		conn.Close()
		return nil, err
	}
	return newSession(id, mux), nil
}

func muxConfig() *yamux.Config {
	cfg := yamux.DefaultConfig()
	cfg.LogOutput = log.WithComponent("yamux")
	return cfg
}

// ID identifies the session
func (s *Session) ID() string {
	return s.id
}

// Open opens a new stream to the remote end
func (s *Session) Open() (net.Conn, error) {
	if s.mux == nil {
		return nil, yamux.ErrSessionShutdown
	}
	return s.mux.Open()
}

// Closed reports whether the session has been destroyed or its transport lost
func (s *Session) Closed() bool {
	return s.conns.isClosed() || (s.mux != nil && s.mux.IsClosed())
}

// Conns returns the number of connections relayed through the session
func (s *Session) Conns() int {
	return s.conns.len()
}

// Destroy closes every tracked connection and the transport. Calling it
// again does nothing.
func (s *Session) Destroy() error {
	if !s.conns.closeAll() {
		return nil
	}
	if s.mux != nil {
		return s.mux.Close()
	}
	return nil
}

// SharedSessions hands out one client session per remote address to every
// tunnel configured with sharedClient=true.
type SharedSessions struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSharedSessions creates an empty session cache
func NewSharedSessions() *SharedSessions {
	return &SharedSessions{sessions: make(map[string]*Session)}
}

// Get returns the live shared session to addr, dialing a new one if there
// is none or the previous one was destroyed.
func (s *SharedSessions) Get(addr string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[addr]; ok && !sess.Closed() {
		return sess, nil
	}

	sess, err := dialSession("shared-"+addr+"-"+uuid.NewString()[:8], addr)
	if err != nil {
		delete(s.sessions, addr)
		return nil, err
	}
	s.sessions[addr] = sess
	return sess, nil
}
