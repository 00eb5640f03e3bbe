/*
Package storage provides the BoltDB-backed journal for the tunnel group.

The journal is optional. It keeps two kinds of records, each serialized as
JSON in its own bucket:

	┌──────────────── <dataDir>/tunnelgroup.db ────────────────┐
	│                                                          │
	│  migrations   key: legacy config file path               │
	│               value: types.MigrationRecord               │
	│                                                          │
	│  transitions  key: 8-byte big-endian sequence number     │
	│               value: types.Transition                    │
	│                                                          │
	└──────────────────────────────────────────────────────────┘

The loader writes a migration record after every migration attempt and
reads it back on later runs, when the legacy file is gone, to report when
it was migrated. The group appends a transition on every state change.

# Usage

	store, err := storage.NewBoltStore("/var/lib/tunnelgroup")
	if err != nil {
		return err
	}
	defer store.Close()

	history, err := store.ListTransitions("tunnelgroup")

BoltDB allows a single writer process per file; open the store once per
process and share it.
*/
package storage
