package commands

import (
	"github.com/spf13/cobra"

	"github.com/septapod/agentmapper/internal/build"
)

var (
	// daemonURL is the base URL of a running workshopd.
	daemonURL string

	// outputFormat controls output format (text, json).
	outputFormat string
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "workshop",
	Short: "Workshop insights and cloud sync CLI",
	Long: `The workshop CLI talks to a running workshopd over its HTTP API.

Use it to record exercise answers, fetch AI insights and drive cloud sync
from scripts or a terminal.`,
	Version:      build.Version(),
	SilenceUsage: true,
}

// Execute runs the CLI.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&daemonURL, "daemon", defaultDaemonURL,
		"Base URL of the workshop daemon",
	)
	rootCmd.PersistentFlags().StringVar(
		&outputFormat, "format", "text",
		"Output format: text, json",
	)

	rootCmd.AddCommand(insightCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(recordsCmd)
	rootCmd.AddCommand(orgCmd)
	rootCmd.AddCommand(syncCmd)
}
