package subcommands

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/docfoundry/docfoundry/internal/cmdutil"
	"github.com/docfoundry/docfoundry/internal/config"
)

// RequeueCmd resets a failed document so the manager retries it.
var RequeueCmd = &cobra.Command{
	Use:   "requeue FILEPATH",
	Short: "Requeue a failed document",
	Long: "Requeue a failed document.\n\n" +
		"Resets an error-status document back to queued with a fresh trace id " +
		"and a cleared error message. The manager re-dispatches it on its next " +
		"scan. Only documents in error status can be requeued.",
	Example: `  # Retry a failed document
  docfoundry status requeue /srv/library/report.pdf`,
	Args:    cobra.ExactArgs(1),
	PreRunE: validateRequeue,
	RunE:    runRequeue,
}

func validateRequeue(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	return nil
}

func runRequeue(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config; %w", err)
	}

	fpath, err := cmdutil.ResolvePath(args[0])
	if err != nil {
		return fmt.Errorf("failed to resolve path; %w", err)
	}

	ctx := cmd.Context()
	store, err := cmdutil.OpenStatusStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	traceID := uuid.NewString()
	requeued, err := store.Requeue(ctx, fpath, traceID)
	if err != nil {
		return fmt.Errorf("failed to requeue document; %w", err)
	}
	if !requeued {
		return fmt.Errorf("document is not in error status: %s", fpath)
	}

	fmt.Printf("Requeued %s (trace %s)\n", fpath, traceID)
	return nil
}
