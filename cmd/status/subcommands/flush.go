package subcommands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/docfoundry/docfoundry/internal/cmdutil"
	"github.com/docfoundry/docfoundry/internal/config"
)

var flushForce bool

// FlushCmd deletes every status record.
var FlushCmd = &cobra.Command{
	Use:   "flush",
	Short: "Delete all document status records",
	Long: "Delete all document status records.\n\n" +
		"Clears the status store completely. The manager will treat every " +
		"library file as new on its next scan and re-dispatch all of them. " +
		"Vector store records are not touched.",
	Example: `  # Flush the status store
  docfoundry status flush --force`,
	PreRunE: validateFlush,
	RunE:    runFlush,
}

func init() {
	FlushCmd.Flags().BoolVar(&flushForce, "force", false, "Confirm the flush (required)")
}

func validateFlush(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	if !flushForce {
		return fmt.Errorf("refusing to flush without --force")
	}
	return nil
}

func runFlush(cmd *cobra.Command, args []string) error {
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

	if err := store.Flush(ctx); err != nil {
		return fmt.Errorf("failed to flush status store; %w", err)
	}

	fmt.Println("Status store flushed.")
	return nil
}
