package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"DecideInbox/internal/app"
	"DecideInbox/internal/domain"
	"DecideInbox/internal/logging"
)

func workersCmd(configPath *string) *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "List registered workers with their liveness",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := openSQLiteConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := withContext(cmd)
			store, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			workers, err := app.NewRegistry(cfg, store, nil).List(ctx, operator)
			if err != nil {
				return err
			}
			printWorkers(cmd.OutOrStdout(), workers, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "", "only show workers of this operator")
	return cmd
}

func sweepCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one heartbeat reconciliation pass",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := openSQLiteConfig(*configPath)
			if err != nil {
				return err
			}
			logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
			ctx := withContext(cmd)
			store, err := app.OpenStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := app.NewRegistry(cfg, store, logger).Reconcile(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d workers: %d idle, %d offline\n",
				res.Checked, len(res.Idle), len(res.Offline))
			return nil
		},
	}
}

func statusColor(s domain.WorkerStatus) func(a ...any) string {
	switch s {
	case domain.WorkerOnline:
		return color.New(color.FgGreen).SprintFunc()
	case domain.WorkerWorking:
		return color.New(color.FgCyan, color.Bold).SprintFunc()
	case domain.WorkerIdle:
		return color.New(color.FgYellow).SprintFunc()
	case domain.WorkerError:
		return color.New(color.FgRed, color.Bold).SprintFunc()
	default:
		return color.New(color.FgHiBlack).SprintFunc()
	}
}

func printWorkers(w io.Writer, workers []domain.WorkerRecord, now time.Time) {
	if len(workers) == 0 {
		fmt.Fprintln(w, color.New(color.FgHiBlack).Sprint("no workers registered"))
		return
	}

	header := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(w, "%s\n", header(fmt.Sprintf("%-36s  %-10s  %-12s  %-24s  %-9s  %8s  %s",
		"ID", "OPERATOR", "ASPECT", "NAME", "STATUS", "INGESTED", "LAST HEARTBEAT")))
	for _, rec := range workers {
		paint := statusColor(rec.Status)
		fmt.Fprintf(w, "%-36s  %-10s  %-12s  %-24s  %s  %8d  %s ago\n",
			rec.ID, rec.OperatorID, rec.Aspect, rec.Name,
			paint(fmt.Sprintf("%-9s", rec.Status)),
			rec.Counters.ItemsIngested,
			now.Sub(rec.LastHeartbeatAt).Round(time.Second))
		if rec.CurrentTask != "" {
			fmt.Fprintf(w, "    task %s, queue %d\n", rec.CurrentTask, rec.QueueDepth)
		}
		for _, e := range rec.RecentErrors {
			fmt.Fprintf(w, "    %s %s\n", color.RedString("!"), e)
		}
	}
}
