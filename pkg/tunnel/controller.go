package tunnel

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/yamux"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"

	"github.com/cuemby/tunnelgroup/pkg/log"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

// Tunnel types
const (
	TypeClient     = "client"
	TypeHTTPClient = "httpclient"
	TypeServer     = "server"
	TypeHTTPServer = "httpserver"
)

// Record keys understood by the controller, on top of types.Key*
const (
	KeyListenHost   = "listenHost"
	KeyListenPort   = "listenPort"
	KeyTargetHost   = "targetHost"
	KeyTargetPort   = "targetPort"
	KeySharedClient = "sharedClient"
)

// Controller states
const (
	StateStopped   = "stopped"
	StateStarting  = "starting"
	StateRunning   = "running"
	StateStopping  = "stopping"
	StateDestroyed = "destroyed"
)

const (
	defaultHost = "127.0.0.1"
	maxMessages = 80
)

// Controller runs one tunnel.
//
// A client tunnel listens locally and carries every accepted connection as
// a stream over a yamux session to a remote server tunnel. A server tunnel
// accepts yamux transports and relays each stream to its target.
type Controller struct {
	record     types.Record
	listenAddr string
	targetAddr string
	shared     bool

	coord    types.Coordinator
	sessions *SharedSessions
	logger   zerolog.Logger

	mu        sync.Mutex
	state     string
	listener  net.Listener
	session   *Session
	conns     *connSet
	destroyed bool

	msgMu    sync.Mutex
	messages []string
}

// NewController validates record and builds a stopped controller.
// sessions may be nil if no tunnel uses sharedClient.
func NewController(record types.Record, coord types.Coordinator, sessions *SharedSessions) (*Controller, error) {
	if coord == nil {
		return nil, fmt.Errorf("coordinator is required")
	}

	switch record.Type() {
	case TypeClient, TypeHTTPClient, TypeServer, TypeHTTPServer:
	default:
		return nil, fmt.Errorf("unknown tunnel type %q", record.Type())
	}

	listenPort, err := parsePort(record[KeyListenPort])
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyListenPort, err)
	}
	targetPort, err := parsePort(record[KeyTargetPort])
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", KeyTargetPort, err)
	}

	c := &Controller{
		record:     record.Clone(),
		listenAddr: net.JoinHostPort(hostOrDefault(record[KeyListenHost]), listenPort),
		targetAddr: net.JoinHostPort(hostOrDefault(record[KeyTargetHost]), targetPort),
		shared:     parseBool(record[KeySharedClient]),
		coord:      coord,
		sessions:   sessions,
		logger:     log.WithTunnel(record.Name()),
		state:      StateStopped,
	}
	if c.shared && c.sessions == nil {
		c.sessions = NewSharedSessions()
	}
	return c, nil
}

func parsePort(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("missing port")
	}
	p, err := strconv.Atoi(s)
	if err != nil || p < 0 || p > 65535 {
		return "", fmt.Errorf("bad port %q", s)
	}
	return strconv.Itoa(p), nil
}

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}

func hostOrDefault(h string) string {
	if h == "" {
		return defaultHost
	}
	return h
}

// Name returns the tunnel name
func (c *Controller) Name() string { return c.record.Name() }

// Type returns the tunnel type
func (c *Controller) Type() string { return c.record.Type() }

// StartOnLoad reports the startOnLoad flag
func (c *Controller) StartOnLoad() bool { return parseBool(c.record[types.KeyStartOnLoad]) }

// IsClient reports whether the tunnel dials out to a server tunnel
func (c *Controller) IsClient() bool {
	t := c.Type()
	return t == TypeClient || t == TypeHTTPClient
}

// State returns the controller state
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Addr returns the listening address, or nil if the tunnel is not running
func (c *Controller) Addr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listener == nil {
		return nil
	}
	return c.listener.Addr()
}

// Session returns the session in use, or nil if the tunnel is not running
func (c *Controller) Session() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Start starts the tunnel in the background
func (c *Controller) Start() {
	go c.start()
}

func (c *Controller) start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed || c.state != StateStopped {
		return
	}
	c.state = StateStarting

	sess, err := c.openSession()
	if err != nil {
		c.state = StateStopped
		c.addMessage(fmt.Sprintf("Unable to open session to %s: %v", c.targetAddr, err))
		return
	}
	c.coord.Acquire(c, sess)

	ln, err := net.Listen("tcp", c.listenAddr)
	if err != nil {
		c.coord.Release(c, sess)
		c.state = StateStopped
		c.addMessage(fmt.Sprintf("Unable to listen on %s: %v", c.listenAddr, err))
		return
	}

	c.listener = ln
	c.session = sess
	c.conns = newConnSet()
	c.state = StateRunning
	c.addMessage(fmt.Sprintf("Tunnel started on %s", ln.Addr()))

	go c.accept(ln, sess, c.conns)
}

func (c *Controller) openSession() (*Session, error) {
	if !c.IsClient() {
		return newSession(uuid.NewString(), nil), nil
	}
	if c.shared {
		return c.sessions.Get(c.targetAddr)
	}
	return dialSession(uuid.NewString(), c.targetAddr)
}

// Stop closes the listener and every relayed connection, and releases the
// session. The tunnel may be started again.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Controller) stopLocked() {
	if c.state != StateRunning {
		return
	}
	c.state = StateStopping

	c.listener.Close()
	c.conns.closeAll()
	c.coord.Release(c, c.session)

	c.listener = nil
	c.session = nil
	c.conns = nil
	c.state = StateStopped
	c.addMessage("Tunnel stopped")
}

// Restart stops the tunnel then starts it in the background
func (c *Controller) Restart() {
	c.Stop()
	c.Start()
}

// Destroy stops the tunnel for good. Later calls to Start are ignored.
func (c *Controller) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.destroyed {
		return
	}
	c.stopLocked()
	c.destroyed = true
	c.state = StateDestroyed
}

// ClearMessages returns the pending messages and empties the log
func (c *Controller) ClearMessages() []string {
	c.msgMu.Lock()
	defer c.msgMu.Unlock()

	msgs := c.messages
	c.messages = nil
	return msgs
}

func (c *Controller) addMessage(msg string) {
	c.logger.Info().Str("type", c.Type()).Msg(msg)

	c.msgMu.Lock()
	defer c.msgMu.Unlock()

	c.messages = append(c.messages, msg)
	if len(c.messages) > maxMessages {
		c.messages = c.messages[len(c.messages)-maxMessages:]
	}
}

// ExportConfig returns the tunnel record with every key prefixed
func (c *Controller) ExportConfig(prefix string) map[string]string {
	return c.record.Prefixed(prefix)
}

func (c *Controller) accept(ln net.Listener, sess *Session, owned *connSet) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			c.logger.Debug().Err(err).Msg("Listener closed")
			return
		}
		if !owned.add(conn) {
			return
		}

		var task func(ctx context.Context)
		if c.IsClient() {
			task = func(ctx context.Context) { c.relayOut(ctx, sess, owned, conn) }
		} else {
			task = func(ctx context.Context) { c.serveTransport(ctx, sess, owned, conn) }
		}
		if !c.coord.WorkerPool().Submit(task) {
			owned.remove(conn)
			conn.Close()
		}
	}
}

// relayOut carries a local connection as a stream over the client session
func (c *Controller) relayOut(ctx context.Context, sess *Session, owned *connSet, local net.Conn) {
	stream, err := sess.Open()
	if err != nil {
		owned.remove(local)
		local.Close()
		c.addMessage(fmt.Sprintf("Unable to open stream to %s: %v", c.targetAddr, err))
		return
	}
	if !sess.conns.add(stream) {
		owned.remove(local)
		local.Close()
		return
	}
	relay(ctx, local, stream)
	owned.remove(local)
	sess.conns.remove(stream)
}

// serveTransport runs a yamux server on an accepted transport and relays
// each of its streams to the target
func (c *Controller) serveTransport(ctx context.Context, sess *Session, owned *connSet, transport net.Conn) {
	mux, err := yamux.Server(transport, muxConfig())
	if err != nil {
		owned.remove(transport)
		transport.Close()
		c.logger.Warn().Err(err).Msg("Rejected transport")
		return
	}
	if !owned.add(mux) {
		return
	}
	defer func() {
		owned.remove(mux)
		owned.remove(transport)
		mux.Close()
	}()

	for {
		stream, err := mux.Accept()
		if err != nil {
			return
		}
		if !owned.add(stream) {
			return
		}
		ok := c.coord.WorkerPool().Submit(func(ctx context.Context) {
			c.relayIn(ctx, sess, owned, stream)
		})
		if !ok {
			owned.remove(stream)
			stream.Close()
			return
		}
	}
}

// relayIn dials the target for one inbound stream
func (c *Controller) relayIn(ctx context.Context, sess *Session, owned *connSet, stream net.Conn) {
	var d net.Dialer
	target, err := d.DialContext(ctx, "tcp", c.targetAddr)
	if err != nil {
		owned.remove(stream)
		stream.Close()
		c.logger.Warn().Err(err).Str("target", c.targetAddr).Msg("Unable to reach target")
		return
	}
	if !sess.conns.add(target) {
		owned.remove(stream)
		stream.Close()
		return
	}
	relay(ctx, stream, target)
	owned.remove(stream)
	sess.conns.remove(target)
}

// relay copies between a and b until either side closes or ctx is done,
// then closes both.
func relay(ctx context.Context, a, b net.Conn) {
	closeBoth := func() {
		a.Close()
		b.Close()
	}
	stop := context.AfterFunc(ctx, closeBoth)
	defer stop()

	var wg conc.WaitGroup
	wg.Go(func() {
		io.Copy(a, b)
		closeBoth()
	})
	wg.Go(func() {
		io.Copy(b, a)
		closeBoth()
	})
	wg.Wait()
}
