package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/stream"
)

// NewPrefsCmd creates the 'prefs' command group.
func NewPrefsCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"preferences"},
		Short:   "Inspect and manage user preference profiles",
	}
	cmd.AddCommand(newPrefsGetCmd(opts))
	cmd.AddCommand(newPrefsDeleteCmd(opts))
	cmd.AddCommand(newPrefsRecordCmd(opts))
	return cmd
}

func newPrefsGetCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "get <user-id>",
		Short:   "Print a user's preference profile",
		Example: `  searchkit prefs get u42`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := opts.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			p, err := svc.GetPreferences(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}
}

func newPrefsDeleteCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <user-id>",
		Aliases: []string{"rm"},
		Short:   "Delete a user's preference profile",
		Example: `  searchkit prefs delete u42`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := opts.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.DeletePreferences(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted preferences for %s\n", args[0])
			return nil
		},
	}
}

func newPrefsRecordCmd(opts *Options) *cobra.Command {
	var publish bool

	cmd := &cobra.Command{
		Use:   "record <events.json>",
		Short: "Replay interaction events into preference profiles",
		Long: `Reads a JSON array of interaction events and feeds them to the collector
in order. Rejected events are counted, not fatal. With --publish the events
are written to the Kafka topic instead.`,
		Example: `  searchkit prefs record events.json
  searchkit prefs record events.json --publish`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var events []*core.UserInteraction
			if err := json.Unmarshal(data, &events); err != nil {
				return fmt.Errorf("decode events %s: %w", args[0], err)
			}

			ctx := cmd.Context()
			svc, err := opts.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			record := svc.RecordInteraction
			if publish {
				pub, err := stream.NewPublisher(svc.Settings().Stream)
				if err != nil {
					return err
				}
				defer pub.Close()
				record = func(ctx context.Context, ev *core.UserInteraction) bool {
					return pub.Publish(ctx, ev) == nil
				}
			}

			accepted := 0
			for _, ev := range events {
				if record(ctx, ev) {
					accepted++
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Recorded %d/%d events\n", accepted, len(events))
			return nil
		},
	}

	cmd.Flags().BoolVar(&publish, "publish", false, "Publish events to stream.topic instead of applying them")
	return cmd
}
