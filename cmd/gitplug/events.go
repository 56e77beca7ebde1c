package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/gitplug/gitplug/internal/domain/state"
)

var eventsCmd = &cobra.Command{
	Use:   "events <repository>",
	Short: "Show the recent state transition log for a repository",
	Long: `Events prints a repository's recorded state transitions, newest
last. Blocked transitions are listed too; they explain why a state did
not change.

Examples:
  gitplug events acme/widget-pack
  gitplug events widget-pack --limit 30`,
	Args: cobra.ExactArgs(1),
	RunE: runEvents,
}

var eventsLimit int

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 10, "Max events to show")
}

func runEvents(cmd *cobra.Command, args []string) error {
	a, err := buildApp(false)
	if err != nil {
		return err
	}
	defer a.close()

	repo, err := resolveRepo(a.cfg, args[0])
	if err != nil {
		return err
	}

	events, err := a.orch.States().Events(cmd.Context(), repo.FullName, eventsLimit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintf(out, "No recorded events for %s\n", repo.FullName)
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tCHANGE\tTRIGGER\tNOTE")
	for _, ev := range events {
		fmt.Fprintf(tw, "%s\t%s -> %s\t%s\t%s\n",
			ev.Timestamp.Format("2006-01-02 15:04:05"),
			ev.From, ev.To,
			ev.Context["trigger"],
			eventNote(ev))
	}
	return tw.Flush()
}

func eventNote(ev state.Event) string {
	switch {
	case ev.Type == state.EventTransitionBlocked:
		return "blocked: " + ev.Reason
	case ev.Forced:
		return "forced"
	default:
		return ""
	}
}
