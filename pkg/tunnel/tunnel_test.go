package tunnel

import (
	"fmt"
	"io"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tunnelgroup/pkg/session"
	"github.com/cuemby/tunnelgroup/pkg/types"
	"github.com/cuemby/tunnelgroup/pkg/workerpool"
)

type testCoord struct {
	sessions *session.Registry
	pool     *workerpool.Pool
}

func newTestCoord(t *testing.T) *testCoord {
	pool := workerpool.New(workerpool.Options{})
	t.Cleanup(func() { pool.Shutdown(time.Second) })
	return &testCoord{sessions: session.NewRegistry(nil), pool: pool}
}

func (c *testCoord) Acquire(owner types.Controller, s types.Session) { c.sessions.Acquire(owner, s) }
func (c *testCoord) Release(owner types.Controller, s types.Session) { c.sessions.Release(owner, s) }
func (c *testCoord) WorkerPool() types.Executor                      { return c.pool }

func echoServer(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()
	return ln.Addr().(*net.TCPAddr).Port
}

func closedPort(t *testing.T) int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

func startTunnel(t *testing.T, coord types.Coordinator, sessions *SharedSessions, rec types.Record) *Controller {
	c, err := NewController(rec, coord, sessions)
	require.NoError(t, err)
	t.Cleanup(c.Destroy)

	c.Start()
	require.Eventually(t, func() bool { return c.State() == StateRunning }, 2*time.Second, 10*time.Millisecond)
	return c
}

func port(c *Controller) string {
	return strconv.Itoa(c.Addr().(*net.TCPAddr).Port)
}

func serverRecord(name string, target int) types.Record {
	return types.Record{
		types.KeyName: name,
		types.KeyType: TypeServer,
		KeyListenPort: "0",
		KeyTargetPort: strconv.Itoa(target),
	}
}

func clientRecord(name, target string, shared bool) types.Record {
	return types.Record{
		types.KeyName:   name,
		types.KeyType:   TypeClient,
		KeyListenPort:   "0",
		KeyTargetPort:   target,
		KeySharedClient: strconv.FormatBool(shared),
	}
}

func pending(c *Controller) int {
	c.msgMu.Lock()
	defer c.msgMu.Unlock()
	return len(c.messages)
}

func roundTrip(t *testing.T, addr net.Addr, payload string) string {
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))

	_, err = conn.Write([]byte(payload))
	require.NoError(t, err)

	buf := make([]byte, len(payload))
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)
	return string(buf)
}

func TestNewControllerValidation(t *testing.T) {
	coord := newTestCoord(t)

	tests := []struct {
		name    string
		record  types.Record
		wantErr string
	}{
		{
			name:   "valid client",
			record: types.Record{"type": "client", "listenPort": "8080", "targetPort": "7654"},
		},
		{
			name:   "valid httpserver",
			record: types.Record{"type": "httpserver", "listenPort": "0", "targetPort": "80"},
		},
		{
			name:    "unknown type",
			record:  types.Record{"type": "socks", "listenPort": "1", "targetPort": "2"},
			wantErr: "unknown tunnel type",
		},
		{
			name:    "missing listen port",
			record:  types.Record{"type": "client", "targetPort": "2"},
			wantErr: "listenPort",
		},
		{
			name:    "bad target port",
			record:  types.Record{"type": "server", "listenPort": "1", "targetPort": "70000"},
			wantErr: "targetPort",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewController(tt.record, coord, nil)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StateStopped, c.State())
		})
	}

	_, err := NewController(types.Record{"type": "client"}, nil, nil)
	assert.Error(t, err)
}

func TestControllerDefaults(t *testing.T) {
	c, err := NewController(types.Record{
		"name":        "web",
		"type":        "httpclient",
		"listenPort":  "8080",
		"targetHost":  "tunnels.example.net",
		"targetPort":  "7654",
		"startOnLoad": "true",
	}, newTestCoord(t), nil)
	require.NoError(t, err)

	assert.Equal(t, "web", c.Name())
	assert.Equal(t, "httpclient", c.Type())
	assert.True(t, c.IsClient())
	assert.True(t, c.StartOnLoad())
	assert.Equal(t, "127.0.0.1:8080", c.listenAddr)
	assert.Equal(t, "tunnels.example.net:7654", c.targetAddr)
	assert.Nil(t, c.Addr())
	assert.Nil(t, c.Session())
}

func TestClientServerRelay(t *testing.T) {
	coord := newTestCoord(t)
	backend := echoServer(t)

	server := startTunnel(t, coord, nil, serverRecord("in", backend))
	client := startTunnel(t, coord, NewSharedSessions(), clientRecord("out", port(server), false))

	assert.Equal(t, "ping", roundTrip(t, client.Addr(), "ping"))
	assert.Equal(t, "second connection", roundTrip(t, client.Addr(), "second connection"))

	msgs := client.ClearMessages()
	require.NotEmpty(t, msgs)
	assert.Contains(t, msgs[0], "Tunnel started on")
	assert.Empty(t, client.ClearMessages())
}

func TestSharedClientSession(t *testing.T) {
	coord := newTestCoord(t)
	server := startTunnel(t, coord, nil, serverRecord("in", echoServer(t)))

	shared := NewSharedSessions()
	a := startTunnel(t, coord, shared, clientRecord("a", port(server), true))
	b := startTunnel(t, coord, shared, clientRecord("b", port(server), true))

	sess := a.Session()
	require.NotNil(t, sess)
	assert.Same(t, sess, b.Session())
	assert.Equal(t, 2, coord.sessions.Owners(sess.ID()))

	assert.Equal(t, "over b", roundTrip(t, b.Addr(), "over b"))

	a.Stop()
	assert.Equal(t, StateStopped, a.State())
	assert.False(t, sess.Closed())
	assert.Equal(t, "still up", roundTrip(t, b.Addr(), "still up"))

	b.Stop()
	assert.True(t, sess.Closed())
	assert.Equal(t, 0, coord.sessions.Owners(sess.ID()))

	// a fresh session is dialed once the old one is gone
	a.Start()
	require.Eventually(t, func() bool { return a.State() == StateRunning }, 2*time.Second, 10*time.Millisecond)
	assert.NotSame(t, sess, a.Session())
}

func TestPrivateClientSessions(t *testing.T) {
	coord := newTestCoord(t)
	server := startTunnel(t, coord, nil, serverRecord("in", echoServer(t)))

	shared := NewSharedSessions()
	a := startTunnel(t, coord, shared, clientRecord("a", port(server), false))
	b := startTunnel(t, coord, shared, clientRecord("b", port(server), false))

	assert.NotEqual(t, a.Session().ID(), b.Session().ID())

	sess := a.Session()
	a.Stop()
	assert.True(t, sess.Closed())
	assert.False(t, b.Session().Closed())
}

func TestStartFailure(t *testing.T) {
	coord := newTestCoord(t)
	c, err := NewController(clientRecord("out", strconv.Itoa(closedPort(t)), false), coord, nil)
	require.NoError(t, err)

	c.Start()
	require.Eventually(t, func() bool { return pending(c) > 0 || c.State() == StateRunning }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, StateStopped, c.State())
	msgs := c.ClearMessages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "Unable to open session")
	assert.Equal(t, 0, coord.sessions.Len())
}

func TestDestroyIsTerminal(t *testing.T) {
	coord := newTestCoord(t)
	c := startTunnel(t, coord, nil, serverRecord("in", echoServer(t)))
	sess := c.Session()

	c.Destroy()
	assert.Equal(t, StateDestroyed, c.State())
	assert.True(t, sess.Closed())

	c.Start()
	c.Restart()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, StateDestroyed, c.State())
	assert.Nil(t, c.Addr())
}

func TestStopClosesRelayedConnections(t *testing.T) {
	coord := newTestCoord(t)
	server := startTunnel(t, coord, nil, serverRecord("in", echoServer(t)))
	client := startTunnel(t, coord, nil, clientRecord("out", port(server), false))

	conn, err := net.Dial("tcp", client.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err = conn.Write([]byte("x"))
	require.NoError(t, err)
	buf := make([]byte, 1)
	_, err = io.ReadFull(conn, buf)
	require.NoError(t, err)

	client.Stop()

	_, err = conn.Read(buf)
	assert.Error(t, err)
}

func TestMessagesAreBounded(t *testing.T) {
	c, err := NewController(clientRecord("out", "1", false), newTestCoord(t), nil)
	require.NoError(t, err)

	for i := 0; i < maxMessages+20; i++ {
		c.addMessage(fmt.Sprintf("message %d", i))
	}
	msgs := c.ClearMessages()
	require.Len(t, msgs, maxMessages)
	assert.Equal(t, "message 20", msgs[0])
}

func TestExportConfig(t *testing.T) {
	rec := clientRecord("out", "7654", true)
	rec[types.KeyConfigFile] = "/etc/tunnels/out.config"
	c, err := NewController(rec, newTestCoord(t), nil)
	require.NoError(t, err)

	out := c.ExportConfig("tunnel.3.")
	assert.Equal(t, "out", out["tunnel.3.name"])
	assert.Equal(t, "true", out["tunnel.3.sharedClient"])
	assert.Equal(t, "/etc/tunnels/out.config", out["tunnel.3.configFile"])
	assert.Len(t, out, len(rec))

	// the exported map is a copy
	out["tunnel.3.name"] = "changed"
	assert.Equal(t, "out", c.Name())
}

func TestSessionDestroy(t *testing.T) {
	s := newSession("s1", nil)
	a, b := net.Pipe()
	defer b.Close()

	require.True(t, s.conns.add(a))
	assert.Equal(t, 1, s.Conns())
	assert.False(t, s.Closed())

	require.NoError(t, s.Destroy())
	require.NoError(t, s.Destroy())
	assert.True(t, s.Closed())

	_, err := a.Write([]byte("x"))
	assert.Error(t, err)

	c, d := net.Pipe()
	defer d.Close()
	assert.False(t, s.conns.add(c))

	_, err = s.Open()
	assert.Error(t, err)
}

func TestSharedSessionsDialFailure(t *testing.T) {
	shared := NewSharedSessions()
	_, err := shared.Get(net.JoinHostPort("127.0.0.1", strconv.Itoa(closedPort(t))))
	assert.Error(t, err)
}
