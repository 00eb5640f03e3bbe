package metrics

import (
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tunnelgroup/pkg/types"
)

type stubController struct {
	types.Controller
	typ, state string
}

func (c stubController) Type() string  { return c.typ }
func (c stubController) State() string { return c.state }

func TestCollectorCollect(t *testing.T) {
	var mu sync.Mutex
	controllers := []types.Controller{
		stubController{typ: "client", state: "running"},
		stubController{typ: "client", state: "running"},
		stubController{typ: "server", state: "stopped"},
	}
	c := NewCollector(func() []types.Controller {
		mu.Lock()
		defer mu.Unlock()
		return controllers
	}, time.Hour)

	c.Collect()
	assert.Equal(t, 2.0, testutil.ToFloat64(TunnelsByState.WithLabelValues("client", "running")))
	assert.Equal(t, 1.0, testutil.ToFloat64(TunnelsByState.WithLabelValues("server", "stopped")))

	mu.Lock()
	controllers = controllers[:1]
	mu.Unlock()

	c.Collect()
	assert.Equal(t, 1.0, testutil.ToFloat64(TunnelsByState.WithLabelValues("client", "running")))
	assert.Equal(t, 1, testutil.CollectAndCount(TunnelsByState))
}

func TestCollectorStartStop(t *testing.T) {
	calls := make(chan struct{}, 10)
	c := NewCollector(func() []types.Controller {
		calls <- struct{}{}
		return nil
	}, 10*time.Millisecond)

	c.Start()
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatal("collector did not sample")
		}
	}

	c.Stop()
	c.Stop()
	require.Equal(t, DefaultCollectInterval, NewCollector(nil, 0).interval)
}
