package storage

import (
	"github.com/cuemby/tunnelgroup/pkg/types"
)

// Store defines the interface for the tunnel group journal
type Store interface {
	// Migrations
	RecordMigration(rec *types.MigrationRecord) error
	GetMigration(legacyFile string) (*types.MigrationRecord, error)
	ListMigrations() ([]*types.MigrationRecord, error)

	// Transitions
	RecordTransition(t *types.Transition) error
	ListTransitions(group string) ([]*types.Transition, error)

	// Utility
	Close() error
}

var _ Store = (*BoltStore)(nil)
