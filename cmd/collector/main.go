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
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "collector",
		Short:         "Poll sources, score findings and submit them to the coordinator",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML config file (default $COLLECTOR_CONFIG)")

	root.AddCommand(&cobra.Command{
		Use:   "run",
		Short: "Run the collection daemon (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), configPath)
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the collector version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "collector %s\n", version)
		},
	})
	return root
}

func run(parent context.Context, configPath string) error {
	cfg, err := config.LoadCollector(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "collector: %v\n", err)
		return err
	}
	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	collector, err := app.NewCollector(cfg, version, logger)
	if err != nil {
		logger.Error("collector setup failed", "error", err)
		return err
	}
	if err := collector.Run(ctx); err != nil {
		logger.Error("collector stopped", "error", err)
		return err
	}
	return nil
}
