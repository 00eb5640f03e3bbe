package props

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "tunnel.config")

	values := map[string]string{
		"tunnel.0.type":        "client",
		"tunnel.0.name":        "irc",
		"tunnel.0.description": "uses ${HOME} literally",
	}
	require.NoError(t, Store(path, values))

	p, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, values, ToMap(p))
}

func TestStoreSortsKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunnel.config")

	require.NoError(t, Store(path, map[string]string{
		"tunnel.1.name": "b",
		"tunnel.0.name": "a",
	}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	first := strings.Index(string(data), "tunnel.0.name")
	second := strings.Index(string(data), "tunnel.1.name")
	assert.True(t, first >= 0 && second > first, "keys should be written in sorted order")
}

func TestStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, Store(filepath.Join(dir, "a.config"), map[string]string{"k": "v"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "a.config", entries[0].Name())
}

func TestStoreOntoDirectoryFails(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "blocked.config")
	require.NoError(t, os.Mkdir(target, 0755))

	err := Store(target, map[string]string{"k": "v"})
	assert.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file should be cleaned up")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.config"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}
