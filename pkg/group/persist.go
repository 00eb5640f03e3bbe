package group

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuemby/tunnelgroup/pkg/events"
	"github.com/cuemby/tunnelgroup/pkg/loader"
	"github.com/cuemby/tunnelgroup/pkg/metrics"
	"github.com/cuemby/tunnelgroup/pkg/props"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

// SaveConfig writes c's config to the file that already holds a tunnel of
// the same name. If none does it goes to <configDir>/<name>.config, or to
// the legacy file while that is the config source. The other
// live tunnels of that file are written along with it.
func (g *Group) SaveConfig(c types.Controller) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	name := c.Name()
	file := g.findLocked(name)
	if file == "" {
		file = g.newFileLocked(name)
	}

	values := g.fileValues(file, name, c)
	if err := props.Store(file, values); err != nil {
		metrics.ConfigWritesTotal.WithLabelValues("save", "failure").Inc()
		return fmt.Errorf("%w: %s: %v", ErrPersistence, file, err)
	}
	metrics.ConfigWritesTotal.WithLabelValues("save", "success").Inc()
	g.registry.SetConfigFile(c, file)

	g.logger.Info().Str("tunnel", name).Str("file", file).Msg("Tunnel configuration saved")
	g.cfg.Broker.Publish(events.NewEvent(events.EventConfigSaved, "tunnel "+name+" saved", map[string]string{
		"tunnel": name,
		"file":   file,
	}))
	return nil
}

// RemoveConfig rewrites the file holding c's config without it. A
// per-tunnel file left with no tunnels is deleted. The controller stays
// registered.
func (g *Group) RemoveConfig(c types.Controller) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	name := c.Name()
	file := g.findLocked(name)
	if file == "" {
		g.logger.Debug().Str("tunnel", name).Msg("Tunnel not found in any config file")
		return nil
	}

	values := g.fileValues(file, name, nil)
	if len(values) == 0 && file != g.loader.ConfigFile() {
		if err := os.Remove(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			metrics.ConfigWritesTotal.WithLabelValues("remove", "failure").Inc()
			return fmt.Errorf("%w: %s: %v", ErrPersistence, file, err)
		}
	} else if err := props.Store(file, values); err != nil {
		metrics.ConfigWritesTotal.WithLabelValues("remove", "failure").Inc()
		return fmt.Errorf("%w: %s: %v", ErrPersistence, file, err)
	}
	metrics.ConfigWritesTotal.WithLabelValues("remove", "success").Inc()
	g.registry.SetConfigFile(c, "")

	g.logger.Info().Str("tunnel", name).Str("file", file).Msg("Tunnel configuration removed")
	g.cfg.Broker.Publish(events.NewEvent(events.EventConfigRemoved, "tunnel "+name+" removed from config", map[string]string{
		"tunnel": name,
		"file":   file,
	}))
	return nil
}

// InConfig returns the config file holding a tunnel named like c, or ""
func (g *Group) InConfig(c types.Controller) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.findLocked(c.Name())
}

// InConfigFile reports whether file holds a tunnel named like c
func (g *Group) InConfigFile(c types.Controller, file string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.fileHolds(file, c.Name())
}

func (g *Group) newFileLocked(name string) string {
	if g.loader.LegacyActive() {
		return g.loader.ConfigFile()
	}
	return filepath.Join(g.loader.ConfigDir(), loader.SavedFileName(name))
}

// findLocked returns the first config source holding a record with the
// given name. Names compare exactly.
func (g *Group) findLocked(name string) string {
	for _, file := range g.loader.Sources() {
		if g.fileHolds(file, name) {
			return file
		}
	}
	return ""
}

func (g *Group) fileHolds(file, name string) bool {
	if _, err := os.Stat(file); err != nil {
		return false
	}
	load := loader.LoadTunnelFile
	if file == g.loader.ConfigFile() {
		load = loader.LoadFile
	}
	recs, err := load(file)
	if err != nil {
		g.logger.Warn().Err(err).Str("file", file).Msg("Unable to read config file")
		return false
	}
	for _, r := range recs {
		if r.Name() == name {
			return true
		}
	}
	return false
}

type indexed struct {
	index int
	c     types.Controller
}

// fileValues builds the content of file: every registered controller that
// belongs to it except those named name, plus self if non-nil. Tunnels are
// ordered by registry position and numbered without gaps, from 0 in the
// legacy file and from the first tunnel's position in per-tunnel files.
func (g *Group) fileValues(file, name string, self types.Controller) map[string]string {
	var members []indexed
	for i, e := range g.registry.Snapshot() {
		if e.ConfigFile == file && e.Controller.Name() != name {
			members = append(members, indexed{index: i, c: e.Controller})
		}
	}
	if self != nil {
		idx := g.registry.IndexOf(self)
		if idx < 0 {
			idx = g.registry.Len()
		}
		members = append(members, indexed{index: idx, c: self})
	}
	sort.SliceStable(members, func(a, b int) bool { return members[a].index < members[b].index })

	values := make(map[string]string)
	if len(members) == 0 {
		return values
	}

	next := members[0].index
	if file == g.loader.ConfigFile() {
		next = 0
	}
	for _, m := range members {
		prefix := loader.IndexPrefix(next)
		for k, v := range m.c.ExportConfig(prefix) {
			if strings.TrimPrefix(k, prefix) == types.KeyConfigFile {
				continue
			}
			values[k] = v
		}
		next++
	}
	return values
}
