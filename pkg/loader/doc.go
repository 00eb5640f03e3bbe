/*
Package loader reads tunnel configuration from disk and migrates the legacy
single-file layout to one file per tunnel.

Two layouts are supported. The legacy layout is a single property file
(tunnel.config) holding every tunnel under keys of the form
tunnel.<index>.<field>, indices starting at 0. The directory layout
(tunnel.config.d) holds one file per tunnel. Files are read and written
through pkg/props, so ${...} references are kept verbatim.

# Architecture

	                 ┌──────────── Load() ────────────┐
	                 │                                 │
	tunnel.config ──▶│  LoadFile (from tunnel.0)       │
	                 │        │                        │
	                 │        ▼  Migrate enabled?      │
	                 │  ┌───────────┐                  │
	                 │  │  Migrate  │── any write ──┐  │
	                 │  └─────┬─────┘   failed      │  │
	                 │        │ ok                  ▼  │
	                 │        ▼            legacy records (fallback)
	                 │  tunnel.config.bak             │
	                 │        │                        │
	tunnel.config.d ▶│  loadDirectory (sorted)         │
	                 │        │                        │
	                 │        ▼                        │
	                 │  drop records without a type    │
	                 └────────────────┬────────────────┘
	                                  ▼
	                        Result{Records, Source, Migrated}

# Extraction

Records are extracted index by index and stop at the first index with no
keys, so a gap truncates the list:

	tunnel.0.name=alpha
	tunnel.0.type=client
	tunnel.2.name=gamma     # never reached
	tunnel.2.type=server

The legacy file is always read from tunnel.0. Per-tunnel files keep the
index their tunnel had when it was written, so LoadTunnelFile starts at the
lowest index present. Every record is tagged with configFile, the absolute
path it was read from; that key is never written back.

# Migration

When migration is enabled and the legacy file exists, tunnel i is written
to <dir>/NN-<name>-config with its original index kept in the keys:

	tunnel.config              tunnel.config.d/
	  tunnel.0.name=web    ─▶    00-web-config   (tunnel.0.*)
	  tunnel.1.name=ssh    ─▶    01-ssh-config   (tunnel.1.*)

Every write is attempted even after one fails. On success the legacy file
is renamed to tunnel.config.bak, or removed if the rename fails. On any
failure the files that were written are removed again, the legacy file is
left alone and its records are used for that run. Load returns no error in
that case; Migrate itself returns a *MigrationError with the per-file
errors.

While a fallback is in effect LegacyActive reports true and Sources lists
the legacy file first, so callers that persist config write to the file the
tunnels were loaded from. The next successful Load clears the fallback.

# Directory Scan

Directory files are loaded in lexicographic order. A file is used when its
name ends in "config", it is not hidden and it is a regular file (symlinks
are followed). A file that fails to parse is logged and skipped.

# Errors

  - ErrConfigNotFound: migration is off and the legacy file is missing, or
    the directory exists but cannot be read
  - ErrConfigParse: the legacy file cannot be parsed

# Journal

With Options.Journal set, every migration attempt is recorded with its
file list, failure count and outcome. When only the directory exists, the
previous migration of the legacy file is looked up and logged.

# Usage

	l := loader.New(loader.Options{
		ConfigFile: "/etc/tunnelgroup/tunnel.config",
		Migrate:    true,
		Journal:    journal,
	})
	res, err := l.Load()
	if err != nil {
		return err
	}
	for _, rec := range res.Records {
		fmt.Println(rec.Name(), rec.Type(), rec.ConfigFile())
	}

# Metrics

  - tunnelgroup_config_load_duration_seconds: time spent in Load
  - tunnelgroup_migration_files_total{result}: per-tunnel files written
*/
package loader
