// Package status provides operator commands over the document status
// store: listing records, aggregate stats, requeueing failures, and
// flushing state.
package status

import (
	"github.com/spf13/cobra"

	"github.com/docfoundry/docfoundry/cmd/status/subcommands"
)

// StatusCmd is the parent command for status store operations.
var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Inspect and manage document processing status",
	Long: "Inspect and manage document processing status.\n\n" +
		"The status store records one row per library document with its " +
		"processing state (queued, processing, processed, error) and the " +
		"trace id of its current attempt.",
}

func init() {
	StatusCmd.AddCommand(subcommands.ListCmd)
	StatusCmd.AddCommand(subcommands.StatsCmd)
	StatusCmd.AddCommand(subcommands.RequeueCmd)
	StatusCmd.AddCommand(subcommands.FlushCmd)
}
