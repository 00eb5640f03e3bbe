package tunnel

import (
	"github.com/cuemby/tunnelgroup/pkg/types"
)

// Factory builds controllers that share one client session cache
type Factory struct {
	sessions *SharedSessions
}

// NewFactory creates a factory with an empty session cache
func NewFactory() *Factory {
	return &Factory{sessions: NewSharedSessions()}
}

// New builds a controller from record. It satisfies types.Factory.
func (f *Factory) New(record types.Record, coord types.Coordinator) (types.Controller, error) {
	return NewController(record, coord, f.sessions)
}

var _ types.Factory = (*Factory)(nil).New
