package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/tunnelgroup/pkg/api"
	"github.com/cuemby/tunnelgroup/pkg/events"
	"github.com/cuemby/tunnelgroup/pkg/lifecycle"
	"github.com/cuemby/tunnelgroup/pkg/log"
	"github.com/cuemby/tunnelgroup/pkg/metrics"
	"github.com/cuemby/tunnelgroup/pkg/storage"
	"github.com/cuemby/tunnelgroup/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the tunnel group and serve health endpoints",
	Long: `Start the tunnel group: load the tunnel config (migrating a legacy file
if enabled), start every tunnel marked startOnLoad, then serve the HTTP
health/metrics endpoints and the gRPC health service until interrupted.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings(cmd)
		if err != nil {
			return err
		}
		logger := log.WithComponent("main")

		hooks := lifecycle.NewHooks()
		defer hooks.Run()

		var journal *storage.BoltStore
		if settings.DataDir != "" {
			journal, err = storage.NewBoltStore(settings.DataDir)
			if err != nil {
				metrics.UpdateComponent(metrics.ComponentJournal, false, err.Error())
				return fmt.Errorf("failed to open journal: %w", err)
			}
			metrics.UpdateComponent(metrics.ComponentJournal, true, "open")
			hooks.Add(func() {
				if err := journal.Close(); err != nil {
					logger.Warn().Err(err).Msg("Failed to close journal")
				}
			})
		}

		broker := events.NewBroker()
		broker.Start()
		hooks.Add(broker.Stop)

		manager := lifecycle.NewAppManager(broker)

		errCh := make(chan error, 2)

		// the gRPC status follows group.state events, so subscribe before startup
		if settings.GRPCAddr != "" {
			grpcServer := api.NewGRPCServer()
			sub := broker.Subscribe()
			go grpcServer.Follow(sub)
			go func() {
				if err := grpcServer.Start(settings.GRPCAddr); err != nil {
					errCh <- fmt.Errorf("gRPC server error: %w", err)
				}
			}()
			hooks.Add(func() {
				broker.Unsubscribe(sub)
				grpcServer.Stop()
			})
		}

		g, err := newGroup(settings, deps{
			journal: journal,
			broker:  broker,
			manager: manager,
			hooks:   hooks,
		})
		if err != nil {
			return err
		}

		if settings.HTTPAddr != "" {
			healthServer := api.NewHealthServer(g)
			go func() {
				if err := healthServer.Start(settings.HTTPAddr); err != nil {
					errCh <- fmt.Errorf("HTTP server error: %w", err)
				}
			}()
			hooks.Add(func() {
				ctx, cancel := context.WithTimeout(context.Background(), settings.ShutdownGrace)
				defer cancel()
				if err := healthServer.Shutdown(ctx); err != nil {
					logger.Warn().Err(err).Msg("Failed to stop HTTP server")
				}
			})
		}

		if err := g.Startup(); err != nil {
			// a failed group never shuts down, so OnRelease will not run
			releaseSlot()
			return err
		}
		collector := metrics.NewCollector(func() []types.Controller {
			var out []types.Controller
			for _, e := range g.Entries() {
				out = append(out, e.Controller)
			}
			return out
		}, metrics.DefaultCollectInterval)
		collector.Start()
		hooks.Add(collector.Stop)

		// the manager shuts the group down before the process hooks run
		hooks.Add(manager.ShutdownAll)

		fmt.Printf("Tunnel group %s with %d tunnels\n", g.State(), len(g.Entries()))
		fmt.Printf("  Config file: %s\n", g.ConfigFile())
		fmt.Printf("  Config dir:  %s\n", g.ConfigDir())
		if settings.HTTPAddr != "" {
			fmt.Printf("  Health:      http://%s/health\n", settings.HTTPAddr)
		}
		if settings.GRPCAddr != "" {
			fmt.Printf("  gRPC health: %s\n", settings.GRPCAddr)
		}
		fmt.Println("Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-errCh:
			fmt.Fprintf(os.Stderr, "\nError: %v\n", err)
		}

		start := time.Now()
		hooks.Run()
		logger.Info().Dur("took", time.Since(start)).Msg("Shutdown complete")
		return nil
	},
}

func init() {
	runCmd.Flags().String("http-addr", "", "Health and metrics HTTP address, empty to disable (default 127.0.0.1:9090)")
	runCmd.Flags().String("grpc-addr", "", "gRPC health address, empty to disable (default 127.0.0.1:9091)")
	runCmd.Flags().Duration("keep-alive", 0, "Idle worker keep-alive (default 2m)")
	runCmd.Flags().Duration("shutdown-grace", 0, "Time allowed for workers to stop (default 5s)")
}
