// Package config loads process settings from defaults, an optional YAML
// file and TUNNELGROUP_* environment variables. Command-line flags are
// applied on top by cmd/tunnelgroup.
package config
