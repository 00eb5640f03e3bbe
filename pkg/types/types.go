package types

import (
	"context"
	"time"
)

// State is a lifecycle state reported by the group and by anything that
// registers with a lifecycle manager.
type State string

const (
	StateUninitialized State = "UNINITIALIZED"
	StateInitialized   State = "INITIALIZED"
	StateStarting      State = "STARTING"
	StateStartFailed   State = "START_FAILED"
	StateRunning       State = "RUNNING"
	StateStopping      State = "STOPPING"
	StateStopped       State = "STOPPED"
)

// AllStates lists every State in lifecycle order
var AllStates = []State{
	StateUninitialized,
	StateInitialized,
	StateStarting,
	StateStartFailed,
	StateRunning,
	StateStopping,
	StateStopped,
}

// Record is one tunnel's flat configuration, prefix already stripped.
type Record map[string]string

// Well-known record keys
const (
	KeyType        = "type"
	KeyName        = "name"
	KeyConfigFile  = "configFile"
	KeyStartOnLoad = "startOnLoad"
	KeyDescription = "description"
)

// Type returns the tunnel type, or "" if the record has none.
func (r Record) Type() string {
	return r[KeyType]
}

// Name returns the tunnel name, or "" if the record has none.
func (r Record) Name() string {
	return r[KeyName]
}

// ConfigFile returns the absolute path of the file the record came from.
func (r Record) ConfigFile() string {
	return r[KeyConfigFile]
}

// Valid reports whether the record carries a type and may become a controller.
func (r Record) Valid() bool {
	_, ok := r[KeyType]
	return ok
}

// Clone returns an independent copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Prefixed returns a copy of the record with every key prefixed.
func (r Record) Prefixed(prefix string) map[string]string {
	out := make(map[string]string, len(r))
	for k, v := range r {
		out[prefix+k] = v
	}
	return out
}

// Session is a shared transport session. Several controllers may use the
// same session; it is destroyed when the last of them releases it.
type Session interface {
	// ID identifies the session across controllers
	ID() string

	// Destroy tears the session down. It must be safe to call more than once.
	Destroy() error
}

// Controller manages one tunnel's lifecycle.
type Controller interface {
	// Name is the logical tunnel name used to locate its config record
	Name() string

	// Type is the tunnel type (client, server, ...)
	Type() string

	// State reports the controller's own running state
	State() string

	// StartOnLoad reports whether the group should start it after loading
	StartOnLoad() bool

	// Start begins starting the tunnel without blocking the caller
	Start()

	// Stop stops the tunnel; it may be started again
	Stop()

	// Restart stops then starts the tunnel
	Restart()

	// Destroy stops the tunnel for good and frees its resources
	Destroy()

	// ClearMessages returns and clears pending log messages
	ClearMessages() []string

	// ExportConfig returns the tunnel's configuration with every key prefixed
	ExportConfig(prefix string) map[string]string
}

// Executor runs units of work on the group's shared worker pool. The
// context passed to the work is cancelled when the pool is shut down.
type Executor interface {
	Submit(task func(ctx context.Context)) bool
}

// Coordinator is the group surface handed to controllers.
type Coordinator interface {
	Acquire(owner Controller, session Session)
	Release(owner Controller, session Session)
	WorkerPool() Executor
}

// Factory builds a controller from a config record.
type Factory func(record Record, coord Coordinator) (Controller, error)

// MigrationRecord is the journal entry for one legacy-file migration attempt.
type MigrationRecord struct {
	LegacyFile   string    `json:"legacy_file"`
	Directory    string    `json:"directory"`
	FilesWritten []string  `json:"files_written"`
	Failures     int       `json:"failures"`
	Success      bool      `json:"success"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Transition is the journal entry for one group state change.
type Transition struct {
	ID    string    `json:"id"`
	Group string    `json:"group"`
	From  State     `json:"from"`
	To    State     `json:"to"`
	Error string    `json:"error,omitempty"`
	At    time.Time `json:"at"`
}
