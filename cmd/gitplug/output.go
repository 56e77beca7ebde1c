package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/gitplug/gitplug/internal/domain/reconcile"
	"github.com/gitplug/gitplug/internal/domain/state"
)

// summaryRounding keeps batch durations readable.
const summaryRounding = 100 * time.Millisecond

// stateLabel renders a lifecycle state as a colored, human-readable label.
func stateLabel(st state.PluginState) string {
	switch st {
	case state.StateAvailable:
		return color.New(color.FgHiGreen).Sprint("available")
	case state.StateInstalledInactive:
		return color.New(color.FgCyan).Sprint("installed")
	case state.StateInstalledActive:
		return color.New(color.FgHiCyan).Sprint("active")
	case state.StateNotPlugin:
		return color.New(color.FgHiBlack).Sprint("not a plugin")
	case state.StateError:
		return color.New(color.FgRed).Sprint("error")
	case state.StateChecking:
		return color.New(color.FgYellow).Sprint("checking")
	default:
		return color.New(color.FgWhite).Sprint("unknown")
	}
}

// printItem writes one reconciliation result as a progress line.
func printItem(w io.Writer, res reconcile.ItemResult) {
	label := stateLabel(res.State)
	name := res.Repository.FullName

	switch {
	case res.Err != nil:
		fmt.Fprintf(w, "  %s  %s (%v)\n", label, name, res.Err)
	case res.UpdateAvailable:
		update := color.New(color.FgYellow).Sprint("[update available]")
		fmt.Fprintf(w, "  %s  %s %s\n", label, name, update)
	case res.Detection.IsPlugin && res.Detection.PluginData["name"] != "":
		fmt.Fprintf(w, "  %s  %s (%s)\n", label, name, res.Detection.PluginData["name"])
	default:
		fmt.Fprintf(w, "  %s  %s\n", label, name)
	}
}

// printSummary writes the batch totals.
func printSummary(w io.Writer, summary *reconcile.Summary) {
	fmt.Fprintf(w, "\nProcessed %d of %d repositories in %s\n",
		summary.Processed, summary.Total, summary.Duration.Round(summaryRounding))
	if summary.Degraded {
		fmt.Fprintln(w, color.New(color.FgYellow).Sprint("Repository list was incomplete; results cover the fetched subset."))
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, st := range state.All() {
		if n := summary.Counts[st]; n > 0 {
			fmt.Fprintf(tw, "  %s\t%d\n", stateLabel(st), n)
		}
	}
	_ = tw.Flush()
}
