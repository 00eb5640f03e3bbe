package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/tunnelgroup/pkg/config"
	"github.com/cuemby/tunnelgroup/pkg/storage"
)

const legacyConfig = `tunnel.0.name=web
tunnel.0.type=client
tunnel.0.listenPort=8080
tunnel.0.targetPort=7654
tunnel.1.name=ssh
tunnel.1.type=server
tunnel.1.listenPort=7655
tunnel.1.targetPort=22
`

func execute(t *testing.T, args ...string) error {
	t.Helper()
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

func TestSingleGroupPerProcess(t *testing.T) {
	dir := t.TempDir()
	settings := config.Default()
	settings.ConfigFile = filepath.Join(dir, "tunnel.config")

	g, err := newGroup(settings, deps{})
	require.NoError(t, err)
	require.NotNil(t, g)

	_, err = newGroup(settings, deps{})
	assert.ErrorContains(t, err, "already exists")

	releaseSlot()
	g2, err := newGroup(settings, deps{})
	require.NoError(t, err)
	assert.NotSame(t, g, g2)
	releaseSlot()
}

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tunnel.config")
	require.NoError(t, os.WriteFile(file, []byte(legacyConfig), 0600))
	dataDir := filepath.Join(dir, "data")

	err := execute(t, "migrate", "--config-file", file, "--config-dir", filepath.Join(dir, "tunnels"), "--data-dir", dataDir)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "tunnels", "00-web-config"))
	assert.FileExists(t, filepath.Join(dir, "tunnels", "01-ssh-config"))
	assert.FileExists(t, file+".bak")
	assert.NoFileExists(t, file)

	store, err := storage.NewBoltStore(dataDir)
	require.NoError(t, err)
	rec, err := store.GetMigration(file)
	require.NoError(t, err)
	assert.True(t, rec.Success)
	assert.Len(t, rec.FilesWritten, 2)

	// the journal is exclusive while open
	err = execute(t, "migrate", "--config-file", file, "--config-dir", filepath.Join(dir, "tunnels"), "--data-dir", dataDir)
	assert.Error(t, err)
	require.NoError(t, store.Close())

	// a second run finds the directory already in place
	err = execute(t, "migrate", "--config-file", file, "--config-dir", filepath.Join(dir, "tunnels"), "--data-dir", dataDir)
	assert.NoError(t, err)
}

func TestListCommand(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "tunnel.config")
	require.NoError(t, os.WriteFile(file, []byte(legacyConfig), 0600))

	err := execute(t, "list", "--config-file", file, "--config-dir", filepath.Join(dir, "tunnels"), "--migrate=false", "--data-dir", "")
	require.NoError(t, err)

	// without migration the legacy file stays put
	assert.FileExists(t, file)
	assert.NoDirExists(t, filepath.Join(dir, "tunnels"))

	// the slot is free again
	_, err = newGroup(config.Default(), deps{})
	require.NoError(t, err)
	releaseSlot()
}

func TestSettingsFlagsOverride(t *testing.T) {
	dir := t.TempDir()
	settingsFile := filepath.Join(dir, "settings.yaml")
	require.NoError(t, os.WriteFile(settingsFile, []byte("logLevel: debug\nmigrate: true\n"), 0600))

	err := execute(t, "version", "--settings", settingsFile, "--log-level", "warn")
	require.NoError(t, err)

	err = execute(t, "version", "--settings", settingsFile, "--log-level", "loud")
	assert.ErrorContains(t, err, "unknown log level")

	// reset for other tests sharing rootCmd
	require.NoError(t, execute(t, "version", "--settings", "", "--log-level", "info"))
}

func TestRunStartupFailureReleasesSlot(t *testing.T) {
	dir := t.TempDir()

	err := execute(t, "run",
		"--config-file", filepath.Join(dir, "missing.config"),
		"--migrate=false",
		"--authoritative",
		"--data-dir", "",
		"--http-addr", "",
		"--grpc-addr", "",
	)
	require.Error(t, err)

	g, err := newGroup(config.Default(), deps{})
	require.NoError(t, err)
	require.NotNil(t, g)
	releaseSlot()
}
