package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rushteam/searchkit/core"
)

// NewDecayCmd creates the 'decay' command group.
func NewDecayCmd(opts *Options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "decay",
		Short: "Apply preference decay",
		Long:  `Time-based and immediate decay of user preference weights.`,
	}
	cmd.AddCommand(newDecaySweepCmd(opts))
	cmd.AddCommand(newDecayUserCmd(opts))
	cmd.AddCommand(newDecayImmediateCmd(opts))
	return cmd
}

func newDecaySweepCmd(opts *Options) *cobra.Command {
	var cursor string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Decay every stored profile",
		Example: `  searchkit decay sweep
  searchkit decay sweep --cursor "$CURSOR"  # resume an interrupted sweep`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := opts.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.SweepDecay(ctx, cursor)
			if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
				return perr
			}
			return err
		},
	}

	cmd.Flags().StringVar(&cursor, "cursor", "", "Resume from the cursor of an interrupted sweep")
	return cmd
}

func newDecayUserCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "user <user-id>",
		Short:   "Decay one user's profile by elapsed time",
		Example: `  searchkit decay user u42`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := opts.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			changed, err := svc.ApplyDecay(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: changed=%t\n", args[0], changed)
			return nil
		},
	}
}

func newDecayImmediateCmd(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:     "immediate <user-id> <type> <factor>",
		Short:   "Multiply one preference type by a factor",
		Long:    `Types: categories, brands, values, priceRanges. The factor must be in (0, 1].`,
		Example: `  searchkit decay immediate u42 brands 0.5`,
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			typ, err := core.ParsePreferenceType(args[1])
			if err != nil {
				return err
			}
			factor, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid factor %q: %w", args[2], err)
			}

			ctx := cmd.Context()
			svc, err := opts.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			changed, err := svc.ApplyImmediateDecay(ctx, args[0], typ, factor)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s x%g changed=%t\n", args[0], typ, factor, changed)
			return nil
		},
	}
}
