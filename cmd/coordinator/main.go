package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"DecideInbox/internal/app"
	"DecideInbox/internal/config"
	"DecideInbox/internal/logging"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "coordinator: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "coordinator",
		Short:         "Worker registry, ingestion gateway and operator inbox",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML config file (default $COORDINATOR_CONFIG)")

	root.AddCommand(serveCmd(&configPath), workersCmd(&configPath), sweepCmd(&configPath))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the coordinator version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "coordinator %s\n", version)
		},
	})
	return root
}

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the heartbeat reconciler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.LoadCoordinator(*configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

			ctx, stop := signal.NotifyContext(withContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			coord, err := app.NewCoordinator(ctx, cfg, version, logger)
			if err != nil {
				logger.Error("coordinator setup failed", "error", err)
				return err
			}
			defer coord.Close()

			if err := coord.Run(ctx); err != nil {
				logger.Error("coordinator stopped", "error", err)
				return err
			}
			logger.Info("coordinator stopped")
			return nil
		},
	}
}

// openSQLiteConfig loads the config and insists on a persistent store, since
// the offline commands have nothing to read from an in-memory one.
func openSQLiteConfig(configPath string) (config.Coordinator, error) {
	cfg, err := config.LoadCoordinator(configPath)
	if err != nil {
		return config.Coordinator{}, err
	}
	if cfg.Storage.Driver != config.StorageSQLite {
		return config.Coordinator{}, fmt.Errorf("this command needs storage.driver %q (set DATABASE_PATH)", config.StorageSQLite)
	}
	return cfg, nil
}

func withContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
