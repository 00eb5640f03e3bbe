package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cuemby/tunnelgroup/pkg/metrics"
	"github.com/cuemby/tunnelgroup/pkg/props"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

// MigrationError reports the per-file failures of a migration. The legacy
// file is left in place when it is returned.
type MigrationError struct {
	Failures int
	Total    int
	Errs     []error
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("migration failed: %d of %d tunnel files could not be written", e.Failures, e.Total)
}

func (e *MigrationError) Unwrap() []error {
	return e.Errs
}

// MigratedFileName returns the per-tunnel file name for the tunnel at index i
func MigratedFileName(i int, name string) string {
	if name == "" {
		name = "tunnel"
	}
	return fmt.Sprintf("%02d-%s-config", i, sanitizeName(name))
}

// SavedFileName returns the file name used when a tunnel is saved and no
// existing file carries it.
func SavedFileName(name string) string {
	if name == "" {
		name = "tunnel"
	}
	return sanitizeName(name) + ".config"
}

// Migrate splits the legacy records into one file per tunnel inside the
// config directory. Every write is attempted even after a failure; if any
// fails, the files that were written are removed again. On
// success the legacy file is renamed with BackupSuffix, or deleted if the
// rename fails, and each record's configFile is updated to its new file.
func (l *Loader) Migrate(records []types.Record) error {
	rec := &types.MigrationRecord{
		LegacyFile: l.configFile,
		Directory:  l.configDir,
	}
	defer l.journalMigration(rec)

	if err := os.MkdirAll(l.configDir, 0700); err != nil {
		rec.Failures = len(records)
		return &MigrationError{
			Failures: len(records),
			Total:    len(records),
			Errs:     []error{fmt.Errorf("failed to create %s: %w", l.configDir, err)},
		}
	}

	paths := make([]string, len(records))
	var errs []error
	for i, r := range records {
		path := filepath.Join(l.configDir, MigratedFileName(i, r.Name()))
		paths[i] = path

		out := r.Clone()
		delete(out, types.KeyConfigFile)
		if err := props.Store(path, out.Prefixed(IndexPrefix(i))); err != nil {
			metrics.MigrationFilesTotal.WithLabelValues("failure").Inc()
			l.logger.Error().Err(err).Str("file", path).Msg("Error migrating tunnel configuration")
			errs = append(errs, err)
			continue
		}
		metrics.MigrationFilesTotal.WithLabelValues("success").Inc()
		rec.FilesWritten = append(rec.FilesWritten, path)
	}

	if len(errs) > 0 {
		rec.Failures = len(errs)
		l.discardWritten(rec.FilesWritten)
		return &MigrationError{Failures: len(errs), Total: len(records), Errs: errs}
	}

	for i, r := range records {
		r[types.KeyConfigFile] = paths[i]
	}
	rec.Success = true

	backup := l.configFile + BackupSuffix
	if err := os.Rename(l.configFile, backup); err != nil {
		l.logger.Warn().Err(err).Str("file", l.configFile).Msg("Unable to back up legacy config file, removing it")
		if err := os.Remove(l.configFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.logger.Error().Err(err).Str("file", l.configFile).Msg("Unable to remove legacy config file")
		}
	}

	l.logger.Info().
		Int("tunnels", len(records)).
		Str("dir", l.configDir).
		Msg("Migrated legacy tunnel configuration")
	return nil
}

// discardWritten removes the files of a failed migration so the next
// attempt does not load a tunnel twice.
func (l *Loader) discardWritten(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			l.logger.Warn().Err(err).Str("file", path).Msg("Unable to remove partially migrated file")
		}
	}
}

func (l *Loader) journalMigration(rec *types.MigrationRecord) {
	if l.journal == nil {
		return
	}
	rec.CompletedAt = time.Now()
	if err := l.journal.RecordMigration(rec); err != nil {
		l.logger.Warn().Err(err).Msg("Failed to journal migration")
	}
}

func sanitizeName(name string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == os.PathSeparator {
			return '_'
		}
		return r
	}, name)
}
