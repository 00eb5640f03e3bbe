package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of every environment override, e.g. TUNNELGROUP_LOG_LEVEL
const EnvPrefix = "TUNNELGROUP"

// Settings configures a tunnelgroup process
type Settings struct {
	// Legacy single config file; relative paths resolve against the working directory
	ConfigFile string `yaml:"configFile" envconfig:"CONFIG_FILE"`

	// Per-tunnel config directory; empty means a sibling of ConfigFile
	ConfigDir string `yaml:"configDir" envconfig:"CONFIG_DIR"`

	// Split the legacy file into per-tunnel files on startup
	Migrate bool `yaml:"migrate" envconfig:"MIGRATE"`

	// Treat a missing config as a startup failure
	Authoritative bool `yaml:"authoritative" envconfig:"AUTHORITATIVE"`

	// Directory of the bbolt journal; empty disables it
	DataDir string `yaml:"dataDir" envconfig:"DATA_DIR"`

	LogLevel string `yaml:"logLevel" envconfig:"LOG_LEVEL"`
	LogJSON  bool   `yaml:"logJSON" envconfig:"LOG_JSON"`

	KeepAlive     time.Duration `yaml:"keepAlive" envconfig:"KEEP_ALIVE"`
	ShutdownGrace time.Duration `yaml:"shutdownGrace" envconfig:"SHUTDOWN_GRACE"`

	// Listen addresses of the HTTP and gRPC health surfaces; empty disables them
	HTTPAddr string `yaml:"httpAddr" envconfig:"HTTP_ADDR"`
	GRPCAddr string `yaml:"grpcAddr" envconfig:"GRPC_ADDR"`
}

// Default returns the built-in settings
func Default() Settings {
	return Settings{
		ConfigFile:    "tunnel.config",
		Migrate:       true,
		DataDir:       "data",
		LogLevel:      "info",
		KeepAlive:     2 * time.Minute,
		ShutdownGrace: 5 * time.Second,
		HTTPAddr:      "127.0.0.1:9090",
		GRPCAddr:      "127.0.0.1:9091",
	}
}

// Load builds settings from the defaults, the YAML file at path (skipped if
// path is empty) and TUNNELGROUP_* environment variables, in that order.
func Load(path string) (Settings, error) {
	s := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return s, fmt.Errorf("failed to read settings file: %w", err)
		}
		if err := yaml.Unmarshal(data, &s); err != nil {
			return s, fmt.Errorf("failed to parse settings file %s: %w", path, err)
		}
	}

	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return s, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := s.Validate(); err != nil {
		return s, err
	}
	return s, nil
}

// Validate checks settings that would otherwise fail late
func (s Settings) Validate() error {
	if s.ConfigFile == "" {
		return fmt.Errorf("config file must be set")
	}
	if s.KeepAlive <= 0 {
		return fmt.Errorf("keep-alive must be positive, got %s", s.KeepAlive)
	}
	if s.ShutdownGrace <= 0 {
		return fmt.Errorf("shutdown grace must be positive, got %s", s.ShutdownGrace)
	}
	switch s.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", s.LogLevel)
	}
	return nil
}
