package loader

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/cuemby/tunnelgroup/pkg/log"
	"github.com/cuemby/tunnelgroup/pkg/metrics"
	"github.com/cuemby/tunnelgroup/pkg/props"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

const (
	// DefaultConfigFile is the legacy single-file configuration
	DefaultConfigFile = "tunnel.config"

	// DefaultConfigDir holds one file per tunnel, next to the legacy file
	DefaultConfigDir = "tunnel.config.d"

	// Prefix starts every tunnel key: tunnel.<index>.<field>
	Prefix = "tunnel."

	// FileSuffix selects tunnel files inside the config directory. It matches
	// both migrated files (00-name-config) and saved files (name.config).
	FileSuffix = "config"

	// BackupSuffix is appended to the legacy file after a successful migration
	BackupSuffix = ".bak"
)

var (
	// ErrConfigNotFound is returned when the required configuration is missing
	// or the config directory cannot be read
	ErrConfigNotFound = errors.New("tunnel configuration not found")

	// ErrConfigParse is returned when a property file cannot be read or parsed
	ErrConfigParse = errors.New("failed to parse tunnel configuration")
)

// Journal records migration attempts. It is optional.
type Journal interface {
	RecordMigration(rec *types.MigrationRecord) error
	GetMigration(legacyFile string) (*types.MigrationRecord, error)
}

// Options configures a Loader
type Options struct {
	// ConfigFile is the legacy monolithic file
	ConfigFile string

	// ConfigDir holds per-tunnel files; defaults to DefaultConfigDir next to ConfigFile
	ConfigDir string

	// Migrate enables migration to, and loading from, ConfigDir
	Migrate bool

	Journal Journal
}

// Result is the outcome of a Load
type Result struct {
	Records []types.Record

	// Source is the directory or the legacy file the records came from
	Source string

	// Migrated is true when this load migrated the legacy file
	Migrated bool
}

// Loader turns on-disk tunnel configuration into records
type Loader struct {
	configFile string
	configDir  string
	migrate    bool
	journal    Journal
	logger     zerolog.Logger

	// fallback is set while a failed migration leaves the legacy file in charge
	fallback atomic.Bool
}

// New creates a loader. Relative paths are resolved against the working directory.
func New(opts Options) *Loader {
	configFile := opts.ConfigFile
	if configFile == "" {
		configFile = DefaultConfigFile
	}
	if abs, err := filepath.Abs(configFile); err == nil {
		configFile = abs
	}

	configDir := opts.ConfigDir
	if configDir == "" {
		configDir = filepath.Join(filepath.Dir(configFile), DefaultConfigDir)
	}
	if abs, err := filepath.Abs(configDir); err == nil {
		configDir = abs
	}

	return &Loader{
		configFile: configFile,
		configDir:  configDir,
		migrate:    opts.Migrate,
		journal:    opts.Journal,
		logger:     log.WithComponent("loader"),
	}
}

// ConfigFile returns the absolute legacy file path
func (l *Loader) ConfigFile() string {
	return l.configFile
}

// ConfigDir returns the absolute per-tunnel directory path
func (l *Loader) ConfigDir() string {
	return l.configDir
}

// MigrationEnabled reports whether the directory is authoritative
func (l *Loader) MigrationEnabled() bool {
	return l.migrate
}

// LegacyActive reports whether the legacy file is the config source: when
// migration is disabled, or when the last Load fell back to it after a
// failed migration.
func (l *Loader) LegacyActive() bool {
	return !l.migrate || l.fallback.Load()
}

// Load reads every tunnel record, migrating the legacy file first when
// migration is enabled and the legacy file exists.
func (l *Loader) Load() (*Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.ConfigLoadDuration)

	useDir := l.migrate
	migrated := false
	fallback := false
	defer func() { l.fallback.Store(fallback) }()
	var legacy []types.Record

	if fileExists(l.configFile) {
		recs, err := LoadFile(l.configFile)
		if err != nil {
			l.logger.Error().Err(err).Str("file", l.configFile).Msg("Unable to load the controllers")
			return nil, err
		}
		legacy = recs

		if useDir {
			if err := l.Migrate(recs); err != nil {
				l.logger.Warn().Err(err).Str("file", l.configFile).Msg("Migration failed, using legacy config file for this run")
				useDir = false
				fallback = true
			} else {
				migrated = true
			}
		}
	} else if !useDir {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, l.configFile)
	} else {
		l.logPreviousMigration()
	}

	result := &Result{Migrated: migrated}
	var records []types.Record
	if useDir {
		recs, err := l.loadDirectory()
		if err != nil {
			return nil, err
		}
		records = recs
		result.Source = l.configDir
	} else {
		records = legacy
		result.Source = l.configFile
	}

	for _, rec := range records {
		if !rec.Valid() {
			l.logger.Warn().
				Str("file", rec.ConfigFile()).
				Str("name", rec.Name()).
				Msg("Skipping tunnel record without a type")
			continue
		}
		result.Records = append(result.Records, rec)
	}

	if len(result.Records) == 0 {
		l.logger.Warn().
			Str("file", l.configFile).
			Str("dir", l.configDir).
			Msg("No tunnel configurations found")
	} else {
		l.logger.Info().
			Int("count", len(result.Records)).
			Str("source", result.Source).
			Msg("Tunnel configurations loaded")
	}

	return result, nil
}

// Sources lists the config files a tunnel may live in: every tunnel file in
// the config directory, plus the legacy file when migration is disabled.
// After a failed migration the legacy file comes first, ahead of any files
// the migration managed to write.
func (l *Loader) Sources() []string {
	if l.fallback.Load() {
		return append([]string{l.configFile}, l.dirFiles()...)
	}
	files := l.dirFiles()
	if !l.migrate {
		files = append(files, l.configFile)
	}
	return files
}

func (l *Loader) dirFiles() []string {
	var files []string
	entries, err := os.ReadDir(l.configDir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		l.logger.Warn().Err(err).Str("dir", l.configDir).Msg("Unable to list config directory")
	}
	for _, e := range entries {
		path := filepath.Join(l.configDir, e.Name())
		if isTunnelFile(path, e.Name()) {
			files = append(files, path)
		}
	}
	return files
}

// loadDirectory loads every tunnel file in the config directory in sorted
// order. A file that fails to parse is logged and skipped.
func (l *Loader) loadDirectory() ([]types.Record, error) {
	entries, err := os.ReadDir(l.configDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: cannot read %s: %v", ErrConfigNotFound, l.configDir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var records []types.Record
	for _, name := range names {
		path := filepath.Join(l.configDir, name)
		if !isTunnelFile(path, name) {
			continue
		}

		recs, err := LoadTunnelFile(path)
		if err != nil {
			l.logger.Error().Err(err).Str("file", path).Msg("Error loading tunnel properties")
			continue
		}
		if len(recs) == 0 {
			l.logger.Error().Str("file", path).Msg("No tunnel properties found in file")
			continue
		}
		records = append(records, recs...)
	}
	return records, nil
}

func (l *Loader) logPreviousMigration() {
	if l.journal == nil {
		return
	}
	rec, err := l.journal.GetMigration(l.configFile)
	if err != nil || rec == nil || !rec.Success {
		return
	}
	l.logger.Debug().
		Str("file", l.configFile).
		Time("completed_at", rec.CompletedAt).
		Int("files", len(rec.FilesWritten)).
		Msg("Legacy config file was migrated previously")
}

// LoadFile parses a property file and extracts its records, starting at
// tunnel.0. It is used for the legacy file.
func LoadFile(path string) ([]types.Record, error) {
	values, abs, err := readValues(path)
	if err != nil {
		return nil, err
	}
	return Extract(values, abs, 0), nil
}

// LoadTunnelFile parses a per-tunnel file. Such files keep the index the
// tunnel had when it was written, so extraction starts at the lowest index
// present rather than at 0.
func LoadTunnelFile(path string) ([]types.Record, error) {
	values, abs, err := readValues(path)
	if err != nil {
		return nil, err
	}
	start, ok := lowestIndex(values)
	if !ok {
		return nil, nil
	}
	return Extract(values, abs, start), nil
}

func readValues(path string) (map[string]string, string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	p, err := props.Load(abs)
	if err != nil {
		return nil, abs, fmt.Errorf("%w: %s: %v", ErrConfigParse, abs, err)
	}
	return props.ToMap(p), abs, nil
}

// Extract builds one record per contiguous tunnel index, beginning at start
// and stopping at the first index with no keys. Each record gets configFile
// set to source.
func Extract(values map[string]string, source string, start int) []types.Record {
	byIndex := make(map[int]types.Record)
	for key, val := range values {
		idx, field, ok := splitKey(key)
		if !ok {
			continue
		}
		rec, exists := byIndex[idx]
		if !exists {
			rec = make(types.Record)
			byIndex[idx] = rec
		}
		rec[field] = val
	}

	var out []types.Record
	for i := start; ; i++ {
		rec, ok := byIndex[i]
		if !ok {
			break
		}
		rec[types.KeyConfigFile] = source
		out = append(out, rec)
	}
	return out
}

// IndexPrefix returns the key prefix for tunnel index i
func IndexPrefix(i int) string {
	return Prefix + strconv.Itoa(i) + "."
}

// splitKey splits tunnel.<i>.<field> into its index and field
func splitKey(key string) (int, string, bool) {
	if !strings.HasPrefix(key, Prefix) {
		return 0, "", false
	}
	rest := key[len(Prefix):]
	dot := strings.IndexByte(rest, '.')
	if dot <= 0 || dot == len(rest)-1 {
		return 0, "", false
	}
	num := rest[:dot]
	for _, c := range num {
		if c < '0' || c > '9' {
			return 0, "", false
		}
	}
	idx, err := strconv.Atoi(num)
	if err != nil {
		return 0, "", false
	}
	return idx, rest[dot+1:], true
}

func lowestIndex(values map[string]string) (int, bool) {
	lowest, found := 0, false
	for key := range values {
		idx, _, ok := splitKey(key)
		if !ok {
			continue
		}
		if !found || idx < lowest {
			lowest, found = idx, true
		}
	}
	return lowest, found
}

func isTunnelFile(path, name string) bool {
	if !strings.HasSuffix(name, FileSuffix) || strings.HasPrefix(name, ".") {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
