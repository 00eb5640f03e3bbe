package metrics

import (
	"sync"
	"time"

	"github.com/cuemby/tunnelgroup/pkg/types"
)

// DefaultCollectInterval is how often the collector samples controllers
const DefaultCollectInterval = 15 * time.Second

// Collector periodically samples controller states into TunnelsByState
type Collector struct {
	source   func() []types.Controller
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewCollector creates a collector reading controllers from source
func NewCollector(source func() []types.Controller, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = DefaultCollectInterval
	}
	return &Collector{
		source:   source,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Collect takes one sample. Type/state pairs that disappeared are dropped.
func (c *Collector) Collect() {
	counts := make(map[[2]string]int)
	for _, ctrl := range c.source() {
		counts[[2]string{ctrl.Type(), ctrl.State()}]++
	}

	TunnelsByState.Reset()
	for key, n := range counts {
		TunnelsByState.WithLabelValues(key[0], key[1]).Set(float64(n))
	}
}
