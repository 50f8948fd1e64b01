package subcommands

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/docfoundry/docfoundry/internal/cmdutil"
	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/statusstore"
)

var statsOutput string

// StatsCmd shows aggregate pipeline throughput counts.
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate document counts by status",
	Long: "Show aggregate document counts by status.\n\n" +
		"Summarizes the status store: how many documents are queued, in " +
		"flight, processed, and failed.",
	Example: `  # Show pipeline stats
  docfoundry status stats`,
	PreRunE: validateStats,
	RunE:    runStats,
}

func init() {
	StatsCmd.Flags().StringVarP(&statsOutput, "output", "o", "table", "Output format (table|json)")
}

func validateStats(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	if statsOutput != "table" && statsOutput != "json" {
		return fmt.Errorf("invalid output format %q", statsOutput)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config; %w", err)
	}

	ctx := cmd.Context()
	store, err := cmdutil.OpenStatusStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	stats, err := store.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stats; %w", err)
	}

	if statsOutput == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STATUS\tCOUNT")
	for _, status := range []statusstore.Status{
		statusstore.StatusQueued,
		statusstore.StatusProcessing,
		statusstore.StatusProcessed,
		statusstore.StatusError,
	} {
		fmt.Fprintf(w, "%s\t%d\n", status, stats.ByStatus[status])
	}
	fmt.Fprintf(w, "total\t%d\n", stats.Total)
	return w.Flush()
}
