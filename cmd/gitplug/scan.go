package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gitplug/gitplug/internal/domain/reconcile"
	"github.com/gitplug/gitplug/internal/domain/state"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan the account and reconcile every repository's state",
	Long: `Scan fetches the account's repositories, checks each one for a
WordPress plugin header and reconciles its recorded state against the
local WordPress installation.

Results stream in as each repository finishes; a failing repository is
reported and the batch moves on.

Examples:
  gitplug scan --account acme
  gitplug scan --account acme --limit 20
  gitplug scan --json`,
	RunE: runScan,
}

var scanJSON bool

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Output results as JSON")
}

// scanItemJSON is the JSON shape of one scan result.
type scanItemJSON struct {
	Repository      string            `json:"repository"`
	State           state.PluginState `json:"state"`
	PluginFile      string            `json:"plugin_file,omitempty"`
	PluginName      string            `json:"plugin_name,omitempty"`
	PluginVersion   string            `json:"plugin_version,omitempty"`
	UpdateAvailable bool              `json:"update_available,omitempty"`
	Error           string            `json:"error,omitempty"`
}

func runScan(cmd *cobra.Command, _ []string) error {
	a, err := buildApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if !scanJSON {
		fmt.Fprintf(out, "Scanning %s...\n", a.cfg.Account)
	}

	var items []scanItemJSON
	emit := func(res reconcile.ItemResult) {
		if scanJSON {
			items = append(items, toScanItemJSON(res))
			return
		}
		printItem(out, res)
	}

	summary, err := a.orch.ProcessAccount(ctx, a.cfg.Account, a.cfg.Limit, emit)
	if err != nil {
		return err
	}

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Items   []scanItemJSON     `json:"items"`
			Summary *reconcile.Summary `json:"summary"`
		}{Items: items, Summary: summary})
	}

	printSummary(out, summary)
	return nil
}

func toScanItemJSON(res reconcile.ItemResult) scanItemJSON {
	item := scanItemJSON{
		Repository:      res.Repository.FullName,
		State:           res.State,
		PluginFile:      res.PluginFile,
		UpdateAvailable: res.UpdateAvailable,
	}
	if res.Detection.IsPlugin {
		item.PluginName = res.Detection.PluginData["name"]
		item.PluginVersion = res.Detection.PluginData["version"]
	}
	if res.Err != nil {
		item.Error = res.Err.Error()
	}
	return item
}
