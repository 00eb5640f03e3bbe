package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cuemby/tunnelgroup/pkg/config"
	"github.com/cuemby/tunnelgroup/pkg/log"
	"github.com/cuemby/tunnelgroup/pkg/metrics"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tunnelgroup",
	Short: "Tunnelgroup - run a group of TCP tunnels from config files",
	Long: `Tunnelgroup loads tunnel definitions from a legacy tunnel.config file or
a directory of per-tunnel config files, starts the tunnels marked
startOnLoad and keeps the files in step with the running tunnels.

A legacy file is split into per-tunnel files on first start unless
migration is disabled.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		log.Init(log.Config{
			Level:      log.ParseLevel(settings.LogLevel),
			JSONOutput: settings.LogJSON,
			Output:     os.Stderr,
		})
		metrics.SetVersion(Version)
		return nil
	},
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Tunnelgroup version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.String("settings", "", "YAML settings file")
	flags.String("config-file", "", "Legacy tunnel config file (default tunnel.config)")
	flags.String("config-dir", "", "Per-tunnel config directory (default <config-file>.d)")
	flags.Bool("migrate", true, "Split the legacy config file into per-tunnel files")
	flags.Bool("authoritative", false, "Fail startup when no tunnel config exists")
	flags.String("data-dir", "", "Journal directory, empty to disable (default data)")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.Bool("log-json", false, "Log in JSON")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadSettings reads the settings file and environment, then applies every
// flag that was set explicitly
func loadSettings(cmd *cobra.Command) (config.Settings, error) {
	path, _ := cmd.Flags().GetString("settings")
	settings, err := config.Load(path)
	if err != nil {
		return settings, err
	}

	flags := cmd.Flags()
	if flags.Changed("config-file") {
		settings.ConfigFile, _ = flags.GetString("config-file")
	}
	if flags.Changed("config-dir") {
		settings.ConfigDir, _ = flags.GetString("config-dir")
	}
	if flags.Changed("migrate") {
		settings.Migrate, _ = flags.GetBool("migrate")
	}
	if flags.Changed("authoritative") {
		settings.Authoritative, _ = flags.GetBool("authoritative")
	}
	if flags.Changed("data-dir") {
		settings.DataDir, _ = flags.GetString("data-dir")
	}
	if flags.Changed("log-level") {
		settings.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		settings.LogJSON, _ = flags.GetBool("log-json")
	}
	if flags.Changed("http-addr") {
		settings.HTTPAddr, _ = flags.GetString("http-addr")
	}
	if flags.Changed("grpc-addr") {
		settings.GRPCAddr, _ = flags.GetString("grpc-addr")
	}
	if flags.Changed("keep-alive") {
		settings.KeepAlive, _ = flags.GetDuration("keep-alive")
	}
	if flags.Changed("shutdown-grace") {
		settings.ShutdownGrace, _ = flags.GetDuration("shutdown-grace")
	}

	return settings, settings.Validate()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Tunnelgroup version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}
