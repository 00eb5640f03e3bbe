package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "tunnelgroup.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	s, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), s)
	assert.Equal(t, "tunnel.config", s.ConfigFile)
	assert.True(t, s.Migrate)
	assert.Equal(t, 2*time.Minute, s.KeepAlive)
}

func TestLoadFileAndEnv(t *testing.T) {
	path := writeSettings(t, `
configFile: /etc/tunnelgroup/tunnel.config
configDir: /etc/tunnelgroup/tunnel.config.d
migrate: false
authoritative: true
logLevel: debug
keepAlive: 30s
httpAddr: ""
`)

	t.Setenv("TUNNELGROUP_LOG_LEVEL", "warn")
	t.Setenv("TUNNELGROUP_SHUTDOWN_GRACE", "1s")

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/etc/tunnelgroup/tunnel.config", s.ConfigFile)
	assert.Equal(t, "/etc/tunnelgroup/tunnel.config.d", s.ConfigDir)
	assert.False(t, s.Migrate)
	assert.True(t, s.Authoritative)
	assert.Equal(t, 30*time.Second, s.KeepAlive)
	assert.Equal(t, "", s.HTTPAddr)

	// environment wins over the file
	assert.Equal(t, "warn", s.LogLevel)
	assert.Equal(t, time.Second, s.ShutdownGrace)

	// untouched fields keep their defaults
	assert.Equal(t, "data", s.DataDir)
	assert.Equal(t, "127.0.0.1:9091", s.GRPCAddr)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "invalid yaml",
			content: "keepAlive: [",
			wantErr: "failed to parse settings file",
		},
		{
			name:    "bad duration in env",
			env:     map[string]string{"TUNNELGROUP_KEEP_ALIVE": "soon"},
			wantErr: "failed to read environment",
		},
		{
			name:    "zero keep-alive",
			content: "keepAlive: 0s",
			wantErr: "keep-alive must be positive",
		},
		{
			name:    "unknown log level",
			content: "logLevel: chatty",
			wantErr: "unknown log level",
		},
		{
			name:    "empty config file",
			content: `configFile: ""`,
			wantErr: "config file must be set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := writeSettings(t, tt.content)

			_, err := Load(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read settings file")
}
