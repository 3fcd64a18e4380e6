package cli

import (
	"github.com/spf13/cobra"

	"github.com/rushteam/searchkit/collab"
)

type similarOutput struct {
	Similar         []collab.SimilarUser    `json:"similar"`
	Recommendations []collab.Recommendation `json:"recommendations,omitempty"`
	Enhanced        bool                    `json:"enhanced,omitempty"`
}

// NewSimilarCmd creates the 'similar' command.
func NewSimilarCmd(opts *Options) *cobra.Command {
	var (
		recommend int
		enhance   bool
	)

	cmd := &cobra.Command{
		Use:   "similar <user-id>",
		Short: "Find users with similar preferences",
		Example: `  searchkit similar u42
  searchkit similar u42 --recommend 10
  searchkit similar u42 --enhance  # blend neighbours' preferences into u42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := opts.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			var out similarOutput
			if out.Similar, err = svc.FindSimilarUsers(ctx, args[0]); err != nil {
				return err
			}
			if recommend > 0 {
				if out.Recommendations, err = svc.GetCollaborativeRecommendations(ctx, args[0], recommend); err != nil {
					return err
				}
			}
			if enhance {
				if out.Enhanced, err = svc.EnhanceUserPreferences(ctx, args[0]); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}

	cmd.Flags().IntVarP(&recommend, "recommend", "r", 0, "Also list N collaborative product recommendations")
	cmd.Flags().BoolVar(&enhance, "enhance", false, "Merge similar users' preferences into the profile")

	return cmd
}
