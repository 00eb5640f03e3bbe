package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tunnelgroup/pkg/events"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

type fakeApp struct {
	name    string
	manager *AppManager
	stopped bool
}

func (a *fakeApp) Name() string        { return a.name }
func (a *fakeApp) DisplayName() string { return "Fake " + a.name }
func (a *fakeApp) State() types.State  { return types.StateRunning }
func (a *fakeApp) Startup() error      { return nil }
func (a *fakeApp) Shutdown() {
	a.stopped = true
	if a.manager != nil {
		a.manager.Unregister(a)
	}
}

func TestAppManagerRegister(t *testing.T) {
	m := NewAppManager(nil)
	app := &fakeApp{name: "tunnels"}

	assert.True(t, m.Register(app))
	assert.False(t, m.Register(&fakeApp{name: "tunnels"}))
	assert.True(t, m.Registered("tunnels"))

	m.Unregister(app)
	assert.False(t, m.Registered("tunnels"))
}

func TestAppManagerNotify(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	m := NewAppManager(broker)
	app := &fakeApp{name: "tunnels"}

	m.Notify(app, types.StateStartFailed, "config missing", errors.New("no file"))

	st, ok := m.Status("tunnels")
	require.True(t, ok)
	assert.Equal(t, types.StateStartFailed, st.State)
	assert.Equal(t, "no file", st.Error)

	select {
	case ev := <-sub:
		assert.Equal(t, events.EventAppState, ev.Type)
		assert.Equal(t, "START_FAILED", ev.Metadata["state"])
		assert.Equal(t, "no file", ev.Metadata["error"])
	case <-time.After(time.Second):
		t.Fatal("no event published")
	}

	_, ok = m.Status("other")
	assert.False(t, ok)
}

func TestHooksRunOnceInReverse(t *testing.T) {
	h := NewHooks()
	var order []int
	h.Add(func() { order = append(order, 1) })
	h.Add(func() { order = append(order, 2) })
	h.Add(func() { order = append(order, 3) })
	assert.Equal(t, 3, h.Len())

	h.Run()
	h.Run()
	assert.Equal(t, []int{3, 2, 1}, order)

	h.Add(func() { order = append(order, 4) })
	assert.Equal(t, 0, h.Len())
}

func TestAppManagerShutdownAll(t *testing.T) {
	m := NewAppManager(nil)
	a := &fakeApp{name: "a", manager: m}
	b := &fakeApp{name: "b", manager: m}
	require.True(t, m.Register(a))
	require.True(t, m.Register(b))

	m.ShutdownAll()

	assert.True(t, a.stopped)
	assert.True(t, b.stopped)
	assert.False(t, m.Registered("a"))
	assert.False(t, m.Registered("b"))

	// nothing left to shut down
	m.ShutdownAll()
}
