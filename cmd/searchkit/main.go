/*
Package main is the entry point for the searchkit CLI.

searchkit personalizes search relevance: it folds user interactions into
preference profiles, decays them over time, assigns users to experiments
and rewrites search queries with scoring boosts.

Usage:

	searchkit [command]

Available Commands:

	query       Run the search enhancement pipeline for a query
	assign      Assign a user to an experiment variant
	decay       Apply preference decay
	prefs       Inspect and manage user preference profiles
	similar     Find users with similar preferences
	scheduler   Run periodic decay sweeps until interrupted
	consume     Consume interaction events from Kafka
*/
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	_ "github.com/rushteam/searchkit/config/builders"
	"github.com/rushteam/searchkit/internal/cli"
)

// 通过 ldflags 注入
var (
	version = "dev"
	commit  = "none"
)

func main() {
	opts := &cli.Options{}
	rootCmd := &cobra.Command{
		Use:   "searchkit",
		Short: "Personalized search relevance engine",
		Long: `searchkit turns user interactions into preference profiles and uses them,
together with query understanding and A/B experiments, to add scoring
boosts to search queries.

Configuration is read from --config (YAML) and SEARCHKIT_* environment
variables, e.g. SEARCHKIT_STORE__BACKEND=redis.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	opts.Bind(rootCmd)

	rootCmd.AddCommand(cli.NewQueryCmd(opts))
	rootCmd.AddCommand(cli.NewAssignCmd(opts))
	rootCmd.AddCommand(cli.NewDecayCmd(opts))
	rootCmd.AddCommand(cli.NewPrefsCmd(opts))
	rootCmd.AddCommand(cli.NewSimilarCmd(opts))
	rootCmd.AddCommand(cli.NewSchedulerCmd(opts))
	rootCmd.AddCommand(cli.NewConsumeCmd(opts))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
