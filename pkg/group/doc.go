/*
Package group orchestrates every tunnel controller of a process.

A Group loads tunnel records through the loader, builds a controller for
each with the configured Factory, starts the ones marked startOnLoad and
keeps per-tunnel config files in step with the live controllers. It also
acts as the types.Coordinator handed to controllers: shared sessions are
reference-counted through Acquire and Release, and WorkerPool returns the
pool used for connection handlers.

# Architecture

	┌──────────────────────── GROUP ─────────────────────────┐
	│                                                         │
	│  ┌──────────────┐   records   ┌──────────────────────┐  │
	│  │    Loader    │────────────▶│  Factory (per type)  │  │
	│  │  legacy/dir  │             └──────────┬───────────┘  │
	│  └──────┬───────┘                        │ controllers  │
	│         │ migrate                        ▼              │
	│         ▼                     ┌──────────────────────┐  │
	│  tunnel.config.d/             │ Controller Registry  │  │
	│    00-web-config              │  ordered, RWMutex    │  │
	│    01-ssh-config              └──────────┬───────────┘  │
	│                                          │              │
	│  ┌──────────────────┐   Acquire/Release  │ Start/Stop   │
	│  │ Session Registry │◀───────────────────┤              │
	│  │  ref-counted     │                    │              │
	│  └──────────────────┘   WorkerPool()     │              │
	│  ┌──────────────────┐◀───────────────────┘              │
	│  │   Worker Pool    │                                   │
	│  │  no queue, lazy  │                                   │
	│  └──────────────────┘                                   │
	│                                                         │
	│  state changes ─▶ Manager, Journal, Broker, gauge       │
	└─────────────────────────────────────────────────────────┘

# Lifecycle

	UNINITIALIZED ─▶ INITIALIZED ─▶ STARTING ─▶ RUNNING ─▶ STOPPING ─▶ STOPPED
	                      │
	                      └──▶ START_FAILED

Startup only runs from INITIALIZED. Controllers are started on a separate
goroutine, so Startup returns as soon as the group is RUNNING. Shutdown
destroys every controller, releases the bootstrap slot through OnRelease
and kills the worker pool; a stopped group cannot be started again.

A missing config is not fatal unless Config.Authoritative is set: the group
logs a warning and runs with no tunnels. Any other load failure moves the
group to START_FAILED and Startup returns an error wrapping ErrConfig.

Every transition is reported to the lifecycle.Manager (if any), the
journal (if any), the event broker and the tunnelgroup_state gauge. When
no Manager is given, Startup adds Shutdown to Config.Hooks instead.

# Core Components

Group:
  - Owns the loader, the registry, the session registry and the pool
  - Implements types.Coordinator and lifecycle.App
  - One per process; the host enforces this and frees its slot in OnRelease

Controller operations:
  - LoadControllers / UnloadControllers / ReloadControllers
  - AddController / RemoveController
  - StartAllControllers / StopAllControllers / RestartAllControllers
  - ClearAllMessages, Controllers, Entries, ConfigFiles

Bulk operations return the messages the controllers logged while running
them, in registry order.

# Worker Pool

The pool is created on the first WorkerPool call. Shutdown stops it for
good; later calls return the stopped pool, so work submitted by a
controller that outlives the group is discarded rather than run.

# Locking

One mutex serializes loading, unloading, persistence and transitions. The
controller registry, the session registry and the worker pool handle each
have their own lock, so controllers may acquire sessions and submit work
while the group mutex is held elsewhere. State reads take a separate
RWMutex and never wait on a long load.

# Persistence

SaveConfig and RemoveConfig locate the file holding a tunnel by its name
(exact match) and rewrite it with the live controllers that belong to it:

	SaveConfig(web)
	  1. find the first source file holding name=web
	  2. collect registry entries registered against that file
	  3. add web's fresh record, drop any stale copy
	  4. number them without gaps and store atomically

A tunnel not found in any file goes to <configDir>/<name>.config, or to the
legacy file while that is the config source. RemoveConfig deletes a
per-tunnel file left empty but always keeps the legacy file. Persistence
never adds or removes registry entries; it only updates the file each entry
is registered against. Write failures wrap ErrPersistence.

InConfig and InConfigFile read the files on disk, not the registry.

# Usage

	g, err := group.New(group.Config{
		ConfigFile: "/etc/tunnelgroup/tunnel.config",
		Migrate:    true,
		Factory:    tunnel.NewFactory().New,
		Manager:    manager,
		Journal:    journal,
		Broker:     broker,
	})
	if err != nil {
		return err
	}
	if err := g.Startup(); err != nil {
		return err
	}
	defer g.Shutdown()

	for _, c := range g.Controllers() {
		fmt.Println(c.Name(), c.State())
	}

# Metrics

  - tunnelgroup_state: current group state
  - tunnelgroup_controllers_total: registered controllers
  - tunnelgroup_config_writes_total{op,result}: save and remove outcomes
*/
package group
