package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rushteam/searchkit/stream"
)

// NewConsumeCmd creates the 'consume' command, which feeds interaction events from Kafka into preference profiles.
func NewConsumeCmd(opts *Options) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Consume interaction events from Kafka",
		Long: `Joins the stream.group consumer group on stream.topic and applies every
interaction event to the preference profiles until SIGINT or SIGTERM.`,
		Example: `  SEARCHKIT_STREAM__BROKERS=localhost:9092 searchkit consume`,
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

			consumer, err := stream.NewConsumer(svc.Settings().Stream, svc)
			if err != nil {
				return err
			}
			defer consumer.Close()
			return consumer.Run(ctx)
		},
	}

	bindMetricsAddr(cmd, &metricsAddr)
	return cmd
}
