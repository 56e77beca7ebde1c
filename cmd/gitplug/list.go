package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the account's repositories with their recorded states",
	Long: `List fetches the account's repositories (served from cache when
fresh) and shows each one with its last recorded state. No detection runs;
use scan to update states.

Examples:
  gitplug list --account acme
  gitplug list --account acme --refresh`,
	RunE: runList,
}

var listRefresh bool

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listRefresh, "refresh", false, "Bypass the repository list cache")
}

func runList(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()

	fetch := a.source.Repositories
	if listRefresh {
		fetch = a.source.Refresh
	}
	repos, err := fetch(ctx, a.cfg.Account, a.cfg.Limit)
	if err != nil {
		return err
	}

	names := make([]string, len(repos))
	for i, repo := range repos {
		names[i] = repo.FullName
	}
	states, err := a.orch.States().BatchStates(ctx, names)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STATE\tREPOSITORY\tDESCRIPTION")
	for _, repo := range repos {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", stateLabel(states[repo.FullName]), repo.FullName, repo.Description)
	}
	return tw.Flush()
}
