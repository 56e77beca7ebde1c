package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install <repository>",
	Short: "Install a plugin from a GitHub repository",
	Long: `Install downloads the repository's branch archive through wp-cli
and installs it into WordPress. The recorded state only changes once
WordPress confirms the plugin landed.

The repository may be a bare name (resolved against the configured
account) or a full owner/name.

Examples:
  gitplug install widget-pack
  gitplug install acme/widget-pack
  gitplug install acme/widget-pack --branch develop`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

var installBranch string

func init() {
	rootCmd.AddCommand(installCmd)
	installCmd.Flags().StringVar(&installBranch, "branch", "", "Branch to install from (default: the repository's default branch)")
}

func runInstall(cmd *cobra.Command, args []string) error {
	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	repo, err := resolveRepo(a.cfg, args[0])
	if err != nil {
		return err
	}
	if installBranch != "" {
		repo.DefaultBranch = installBranch
	}

	res, err := a.orch.Install(cmd.Context(), repo)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Installed %s from branch %s\n", repo.FullName, repo.Branch())
	fmt.Fprintf(out, "  state: %s\n", stateLabel(res.State))
	if res.PluginFile != "" {
		fmt.Fprintf(out, "  plugin file: %s\n", res.PluginFile)
	}
	return nil
}
