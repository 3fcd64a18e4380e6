package cli

import (
	"github.com/spf13/cobra"

	"github.com/rushteam/searchkit/core"
	"github.com/rushteam/searchkit/pkg/utils"
	"github.com/rushteam/searchkit/relevance"
)

type queryOutput struct {
	Understanding *core.QueryUnderstanding `json:"understanding,omitempty"`
	Assignment    *core.Assignment         `json:"assignment,omitempty"`
	Algorithm     core.Algorithm           `json:"algorithm"`
	Labels        map[string]utils.Label   `json:"labels,omitempty"`
	Query         *core.Query              `json:"query"`
}

// NewQueryCmd creates the 'query' command: understand a search text and print the enhanced query.
func NewQueryCmd(opts *Options) *cobra.Command {
	var (
		userID     string
		clientID   string
		experiment string
		profile    string
		noPersonal bool
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Run the search enhancement pipeline for a query",
		Long: `Runs query understanding, experiment assignment, preference loading and
scoring for the given text, then prints the enhanced query as JSON.`,
		Example: `  searchkit query "nike running shoes under $100"
  searchkit query "gifts for mom" --user u42 --experiment search_relevance_test_1
  searchkit query "lamp" --profile popularity`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := opts.Open(ctx, cmd)
			if err != nil {
				return err
			}
			defer svc.Close()

			sctx := core.NewSearchContext(userID, args[0], nil)
			sctx.ClientID = clientID
			sctx.ExperimentID = experiment
			sctx.Params = map[string]any{}
			if profile != "" {
				sctx.Params[relevance.ParamProfile] = profile
			}
			if noPersonal {
				sctx.Params[relevance.ParamPersonalization] = false
			}
			q := svc.Enhance(ctx, sctx)
			return printJSON(cmd.OutOrStdout(), queryOutput{
				Understanding: sctx.Understanding,
				Assignment:    sctx.Assignment,
				Algorithm:     sctx.Algorithm,
				Labels:        sctx.Labels,
				Query:         q,
			})
		},
	}

	cmd.Flags().StringVarP(&userID, "user", "u", "", "User id for personalization")
	cmd.Flags().StringVar(&clientID, "client", "", "Client id for anonymous assignment")
	cmd.Flags().StringVarP(&experiment, "experiment", "e", "", "Experiment to enroll in")
	cmd.Flags().StringVarP(&profile, "profile", "p", "", "Force a scoring profile")
	cmd.Flags().BoolVar(&noPersonal, "no-personalization", false, "Disable personalization for this request")

	return cmd
}
