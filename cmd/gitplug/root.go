package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitplug/gitplug/internal/domain/config"
	"github.com/gitplug/gitplug/internal/domain/repository"
)

var (
	// Global flags
	cfgFile     string
	verbose     bool
	accountFlag string
	limitFlag   int
	wpPathFlag  string
)

var rootCmd = &cobra.Command{
	Use:   "gitplug",
	Short: "Install WordPress plugins straight from GitHub accounts",
	Long: `Gitplug scans a GitHub account for repositories that are WordPress
plugins and manages their lifecycle on a local WordPress installation:
discover, install, activate, deactivate.

Every repository moves through a validated set of states (unknown,
checking, available, installed, active) and every change is recorded,
so the displayed status always matches what WordPress actually reports.`,
	SilenceErrors: true, // We handle error formatting ourselves
	SilenceUsage:  true, // Don't show usage on error
}

// Execute runs the root command.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: gitplug.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&accountFlag, "account", "a", "", "GitHub account to scan")
	rootCmd.PersistentFlags().IntVar(&limitFlag, "limit", 0, "max repositories to fetch (0 = no cap)")
	rootCmd.PersistentFlags().StringVar(&wpPathFlag, "wp-path", "", "WordPress installation root")

	registerFlagCompletions()

	rootCmd.AddCommand(versionCmd)
}

// formatError returns a user-friendly error message with a suggestion
// where one exists. With verbose=true the raw error chain is shown too.
func formatError(err error) string {
	msg, suggestion := classifyError(err)
	if suggestion != "" {
		msg += fmt.Sprintf("\n\nSuggestion: %s", suggestion)
	}
	if verbose {
		msg += fmt.Sprintf("\n\nTechnical details: %v", err)
	}
	return msg
}

func classifyError(err error) (msg, suggestion string) {
	switch {
	case errors.Is(err, repository.ErrRateLimited):
		return "GitHub is rate-limiting requests",
			"set GITPLUG_GITHUB_TOKEN or wait a while, then retry"
	case errors.Is(err, repository.ErrInvalidAccount):
		return "the GitHub account does not exist",
			"check the account name for typos"
	case errors.Is(err, repository.ErrNetwork):
		return "could not reach GitHub", "check your network connection and retry"
	case errors.Is(err, config.ErrNoAccount):
		return "no GitHub account configured",
			"pass --account or set account: in gitplug.yaml"
	case errors.Is(err, config.ErrNotFound):
		return err.Error(), "create the file or drop the --config flag"
	default:
		return err.Error(), ""
	}
}

// printError prints an error message to stderr with proper formatting.
func printError(err error) {
	printErrorTo(os.Stderr, err)
}

// printErrorTo prints an error message to the given writer.
func printErrorTo(w io.Writer, err error) {
	_, _ = fmt.Fprintf(w, "Error: %s\n", formatError(err))
}

// registerFlagCompletions sets up custom completions for global flags.
func registerFlagCompletions() {
	_ = rootCmd.RegisterFlagCompletionFunc("config", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"yaml", "yml"}, cobra.ShellCompDirectiveFilterFileExt
	})
}
