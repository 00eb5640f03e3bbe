package group

import (
	"fmt"
	"strconv"

	"github.com/cuemby/tunnelgroup/pkg/events"
	"github.com/cuemby/tunnelgroup/pkg/registry"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

// LoadControllers loads the configured tunnels if they are not loaded yet.
// It does not start them.
func (g *Group) LoadControllers() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.loadLocked()
}

// UnloadControllers destroys every controller and forgets them. Config
// files are not touched.
func (g *Group) UnloadControllers() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.unloadLocked()
}

// ReloadControllers destroys every controller, reads the config from disk
// again and starts the tunnels marked startOnLoad.
func (g *Group) ReloadControllers() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch st := g.State(); st {
	case types.StateStopping, types.StateStopped:
		return fmt.Errorf("%w: cannot reload while %s", ErrState, st)
	}

	g.unloadLocked()
	if err := g.loadLocked(); err != nil {
		return err
	}
	g.startLocked()
	return nil
}

// AddController registers c without saving or starting it
func (g *Group) AddController(c types.Controller) {
	file := c.ExportConfig("")[types.KeyConfigFile]
	g.registry.Add(c, file)

	g.cfg.Broker.Publish(events.NewEvent(events.EventControllerAdded, "tunnel "+c.Name()+" added", map[string]string{
		"tunnel": c.Name(),
	}))
}

// RemoveController stops c and drops it from the registry. Its config is
// kept; call RemoveConfig as well to delete it.
func (g *Group) RemoveController(c types.Controller) []string {
	if c == nil {
		return nil
	}
	msgs := g.registry.Remove(c)

	g.cfg.Broker.Publish(events.NewEvent(events.EventControllerRemoved, "tunnel "+c.Name()+" removed", map[string]string{
		"tunnel": c.Name(),
	}))
	return msgs
}

// StartAllControllers starts every tunnel and returns their messages
func (g *Group) StartAllControllers() []string {
	return g.forAll("started", func(c types.Controller) { c.Start() })
}

// StopAllControllers stops every tunnel and returns their messages. The
// tunnels may be started again.
func (g *Group) StopAllControllers() []string {
	return g.forAll("stopped", func(c types.Controller) { c.Stop() })
}

// RestartAllControllers restarts every tunnel and returns their messages
func (g *Group) RestartAllControllers() []string {
	return g.forAll("restarted", func(c types.Controller) { c.Restart() })
}

// ClearAllMessages drains the pending messages of every tunnel
func (g *Group) ClearAllMessages() []string {
	var msgs []string
	g.registry.ForEach(func(_ int, e registry.Entry) {
		msgs = append(msgs, e.Controller.ClearMessages()...)
	})
	return msgs
}

// Controllers returns the registered controllers, loading them first if
// needed. A load failure is logged and an empty list returned.
func (g *Group) Controllers() []types.Controller {
	g.mu.Lock()
	if !g.loaded {
		if err := g.loadLocked(); err != nil {
			g.logger.Error().Err(err).Msg("Unable to load the controllers")
		}
	}
	g.mu.Unlock()

	return g.registry.Controllers()
}

// Entries returns the registered controllers with their config files
func (g *Group) Entries() []registry.Entry {
	return g.registry.Snapshot()
}

// ConfigFiles lists the files tunnel config may live in
func (g *Group) ConfigFiles() []string {
	return g.loader.Sources()
}

func (g *Group) forAll(verb string, fn func(c types.Controller)) []string {
	var msgs []string
	n := 0
	g.registry.ForEach(func(_ int, e registry.Entry) {
		fn(e.Controller)
		msgs = append(msgs, e.Controller.ClearMessages()...)
		n++
	})
	g.logger.Info().Int("count", n).Msg("Controllers " + verb)
	return msgs
}

func (g *Group) loadLocked() error {
	if g.loaded {
		return nil
	}

	res, err := g.loader.Load()
	if err != nil {
		return err
	}

	for _, rec := range res.Records {
		c, err := g.cfg.Factory(rec, g)
		if err != nil {
			g.logger.Error().
				Err(err).
				Str("tunnel", rec.Name()).
				Str("file", rec.ConfigFile()).
				Msg("Unable to create tunnel controller")
			continue
		}
		g.registry.Add(c, rec.ConfigFile())
	}
	g.loaded = true

	if res.Migrated {
		g.cfg.Broker.Publish(events.NewEvent(events.EventConfigMigrated, "legacy config migrated", map[string]string{
			"file": g.loader.ConfigFile(),
			"dir":  g.loader.ConfigDir(),
		}))
	}
	g.cfg.Broker.Publish(events.NewEvent(events.EventControllersLoaded, "controllers loaded", map[string]string{
		"count":  strconv.Itoa(g.registry.Len()),
		"source": res.Source,
	}))

	g.logger.Info().Int("count", g.registry.Len()).Str("source", res.Source).Msg("Controllers loaded")
	return nil
}

func (g *Group) unloadLocked() {
	if !g.loaded {
		return
	}

	n := g.registry.Len()
	g.registry.Clear()
	g.loaded = false

	g.cfg.Broker.Publish(events.NewEvent(events.EventControllersUnloaded, "controllers unloaded", map[string]string{
		"count": strconv.Itoa(n),
	}))
	g.logger.Info().Int("count", n).Msg("All controllers stopped and unloaded")
}

// startLocked moves the group through STARTING to RUNNING and starts the
// startOnLoad controllers on a separate goroutine.
func (g *Group) startLocked() {
	g.changeState(types.StateStarting, nil)

	entries := g.registry.Snapshot()
	go g.startControllers(entries)

	g.changeState(types.StateRunning, nil)
}

func (g *Group) startControllers(entries []registry.Entry) {
	if len(entries) == 0 {
		g.logger.Warn().Msg("No configured tunnels to start")
		return
	}

	started := 0
	for _, e := range entries {
		if !e.Controller.StartOnLoad() {
			continue
		}
		e.Controller.Start()
		started++
	}
	g.logger.Info().Int("started", started).Int("total", len(entries)).Msg("Tunnels started")
}
