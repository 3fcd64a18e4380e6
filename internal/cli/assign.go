package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewAssignCmd creates the 'assign' command.
func NewAssignCmd(opts *Options) *cobra.Command {
	var (
		clientID string
		attrs    map[string]string
	)

	cmd := &cobra.Command{
		Use:   "assign <experiment> <user>",
		Short: "Assign a user to an experiment variant",
		Long: `Hashes the user into a variant of the experiment. Assignments are sticky:
the same user always lands in the same variant while the experiment is unchanged.`,
		Example: `  searchkit assign search_relevance_test_1 u42
  searchkit assign checkout_boost "" --client c-9
  searchkit assign premium_test u42 --attr tier=gold --attr country=DE`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := opts.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			var userAttrs map[string]any
			if len(attrs) > 0 {
				userAttrs = make(map[string]any, len(attrs))
				for k, v := range attrs {
					userAttrs[k] = v
				}
			}
			a := svc.AssignVariant(ctx, args[0], args[1], clientID, userAttrs)
			if a == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Not enrolled in %s\n", args[0])
				return nil
			}
			return printJSON(cmd.OutOrStdout(), a)
		},
	}

	cmd.Flags().StringVar(&clientID, "client", "", "Client id for anonymous users")
	cmd.Flags().StringToStringVar(&attrs, "attr", nil, "User attribute for targeting (key=value, repeatable)")

	return cmd
}
