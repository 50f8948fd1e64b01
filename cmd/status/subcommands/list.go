package subcommands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/docfoundry/docfoundry/internal/cmdutil"
	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/statusstore"
)

var (
	listStatus string
	listOutput string
)

// ListCmd lists document status records.
var ListCmd = &cobra.Command{
	Use:   "list",
	Short: "List document status records",
	Long: "List document status records.\n\n" +
		"Shows every tracked document with its current status, trace id, and " +
		"error message (if any). Filter by status with --status.",
	Example: `  # List all documents
  docfoundry status list

  # List failed documents as JSON
  docfoundry status list --status error -o json`,
	PreRunE: validateList,
	RunE:    runList,
}

func init() {
	ListCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (queued|processing|processed|error)")
	ListCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "Output format (table|json)")
}

func validateList(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	if listStatus != "" && !statusstore.Status(listStatus).Valid() {
		return fmt.Errorf("invalid status filter %q", listStatus)
	}
	if listOutput != "table" && listOutput != "json" {
		return fmt.Errorf("invalid output format %q", listOutput)
	}
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
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

	records, err := store.List(ctx, statusstore.Status(listStatus))
	if err != nil {
		return fmt.Errorf("failed to list documents; %w", err)
	}

	if listOutput == "json" {
		return printJSON(records)
	}
	return printTable(ctx, records)
}

func printJSON(records []statusstore.Record) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

func printTable(_ context.Context, records []statusstore.Record) error {
	if len(records) == 0 {
		fmt.Println("No documents tracked.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "FILENAME\tSTATUS\tTRACE\tUPDATED\tERROR")
	for _, rec := range records {
		errMsg := ""
		if rec.ErrorMessage != nil {
			errMsg = *rec.ErrorMessage
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			rec.Filename,
			rec.Status,
			rec.TraceID,
			rec.ProcessedDate.Format("2006-01-02 15:04:05"),
			errMsg,
		)
	}
	return w.Flush()
}
