package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var activateCmd = &cobra.Command{
	Use:   "activate <repository>",
	Short: "Activate an installed plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  runActivate,
}

var deactivateCmd = &cobra.Command{
	Use:   "deactivate <repository>",
	Short: "Deactivate an installed plugin",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeactivate,
}

func init() {
	rootCmd.AddCommand(activateCmd)
	rootCmd.AddCommand(deactivateCmd)
}

func runActivate(cmd *cobra.Command, args []string) error {
	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	repo, err := resolveRepo(a.cfg, args[0])
	if err != nil {
		return err
	}

	res, err := a.orch.Activate(cmd.Context(), repo)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", repo.FullName, stateLabel(res.State))
	return nil
}

func runDeactivate(cmd *cobra.Command, args []string) error {
	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	repo, err := resolveRepo(a.cfg, args[0])
	if err != nil {
		return err
	}

	res, err := a.orch.Deactivate(cmd.Context(), repo)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", repo.FullName, stateLabel(res.State))
	return nil
}
