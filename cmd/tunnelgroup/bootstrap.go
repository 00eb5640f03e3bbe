package main

import (
	"fmt"
	"sync"

	"github.com/cuemby/tunnelgroup/pkg/config"
	"github.com/cuemby/tunnelgroup/pkg/events"
	"github.com/cuemby/tunnelgroup/pkg/group"
	"github.com/cuemby/tunnelgroup/pkg/lifecycle"
	"github.com/cuemby/tunnelgroup/pkg/storage"
	"github.com/cuemby/tunnelgroup/pkg/tunnel"
)

// One group may exist per process. The slot is released by the group's
// Shutdown so a new one can be created afterwards.
var (
	slotMu sync.Mutex
	slot   *group.Group
)

// deps are the collaborators shared by a group and the process hosting it
type deps struct {
	journal *storage.BoltStore
	broker  *events.Broker
	manager lifecycle.Manager
	hooks   *lifecycle.Hooks
}

func newGroup(settings config.Settings, d deps) (*group.Group, error) {
	slotMu.Lock()
	defer slotMu.Unlock()

	if slot != nil {
		return nil, fmt.Errorf("a tunnel group already exists in this process (state %s)", slot.State())
	}

	cfg := group.Config{
		ConfigFile:    settings.ConfigFile,
		ConfigDir:     settings.ConfigDir,
		Migrate:       settings.Migrate,
		Authoritative: settings.Authoritative,
		Factory:       tunnel.NewFactory().New,
		Manager:       d.manager,
		Hooks:         d.hooks,
		OnRelease:     releaseSlot,
		Broker:        d.broker,
		KeepAlive:     settings.KeepAlive,
		ShutdownGrace: settings.ShutdownGrace,
	}
	if d.journal != nil {
		cfg.Journal = d.journal
	}

	g, err := group.New(cfg)
	if err != nil {
		return nil, err
	}
	slot = g
	return g, nil
}

func releaseSlot() {
	slotMu.Lock()
	defer slotMu.Unlock()
	slot = nil
}
