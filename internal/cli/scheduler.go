package cli

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// NewSchedulerCmd creates the 'scheduler' command, which runs decay sweeps on the configured cron schedule.
func NewSchedulerCmd(opts *Options) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run periodic decay sweeps until interrupted",
		Long: `Starts the decay scheduler using decay.schedule (cron syntax, default @daily)
and blocks until SIGINT or SIGTERM.`,
		Example: `  searchkit scheduler --config searchkit.yaml`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			svc, err := opts.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.Close()
			serveMetrics(ctx, metricsAddr)

			sched, err := svc.NewDecayScheduler()
			if err != nil {
				return err
			}
			sched.Start()
			defer sched.Stop()

			fmt.Fprintf(cmd.OutOrStdout(), "Decay scheduler running, next sweep at %s\n", sched.Next().Format("2006-01-02 15:04:05 MST"))
			<-ctx.Done()
			return nil
		},
	}

	bindMetricsAddr(cmd, &metricsAddr)
	return cmd
}
