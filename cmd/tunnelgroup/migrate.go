package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cuemby/tunnelgroup/pkg/loader"
	"github.com/cuemby/tunnelgroup/pkg/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Split the legacy config file into per-tunnel files",
	Long: `Run the config migration without starting any tunnel. The legacy file is
renamed to <file>.bak once every tunnel has been written to its own file
in the config directory. On any failure the legacy file is left untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}

		opts := loader.Options{
			ConfigFile: settings.ConfigFile,
			ConfigDir:  settings.ConfigDir,
			Migrate:    true,
		}
		if settings.DataDir != "" {
			journal, err := storage.NewBoltStore(settings.DataDir)
			if err != nil {
				return fmt.Errorf("failed to open journal: %w", err)
			}
			defer journal.Close()
			opts.Journal = journal
		}

		l := loader.New(opts)
		fmt.Printf("Legacy file: %s\n", l.ConfigFile())
		fmt.Printf("Config dir:  %s\n", l.ConfigDir())

		res, err := l.Load()
		if errors.Is(err, loader.ErrConfigNotFound) {
			fmt.Println("Nothing to migrate: no config found")
			return nil
		}
		if err != nil {
			return err
		}

		switch {
		case res.Migrated:
			fmt.Printf("✓ Migrated %d tunnels\n", len(res.Records))
		case res.Source == l.ConfigFile():
			return fmt.Errorf("migration failed, %d tunnels still loaded from %s", len(res.Records), res.Source)
		default:
			fmt.Printf("Already migrated: %d tunnels in %s\n", len(res.Records), res.Source)
		}
		return nil
	},
}
