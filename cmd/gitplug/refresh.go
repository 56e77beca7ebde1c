package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh [repository]",
	Short: "Drop cached results and re-check a repository or the whole account",
	Long: `Refresh discards the cached detection result for a repository and
re-runs reconciliation with force, so even terminal states like "not a
plugin" are re-evaluated. Without an argument the repository list cache
for the whole account is dropped instead.

Examples:
  gitplug refresh acme/widget-pack
  gitplug refresh --account acme`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRefresh,
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}

func runRefresh(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if len(args) == 0 {
		a, err := buildApp(true)
		if err != nil {
			return err
		}
		defer a.close()

		repos, err := a.source.Refresh(cmd.Context(), a.cfg.Account, a.cfg.Limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Refreshed repository list for %s (%d repositories)\n", a.cfg.Account, len(repos))
		fmt.Fprintln(out, "Run scan to re-check plugin states.")
		return nil
	}

	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	repo, err := resolveRepo(a.cfg, args[0])
	if err != nil {
		return err
	}

	res := a.orch.Refresh(cmd.Context(), repo)
	if res.Err != nil {
		return fmt.Errorf("refresh %s: %w", repo.FullName, res.Err)
	}
	fmt.Fprintf(out, "%s is now %s\n", repo.FullName, stateLabel(res.State))
	return nil
}
