package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	configcmd "github.com/docfoundry/docfoundry/cmd/config"
	"github.com/docfoundry/docfoundry/cmd/manager"
	"github.com/docfoundry/docfoundry/cmd/run"
	"github.com/docfoundry/docfoundry/cmd/search"
	"github.com/docfoundry/docfoundry/cmd/status"
	versioncmd "github.com/docfoundry/docfoundry/cmd/version"
	"github.com/docfoundry/docfoundry/cmd/worker"
	"github.com/docfoundry/docfoundry/internal/config"
	"github.com/docfoundry/docfoundry/internal/logging"
)

// logManager is the global logging manager, created in init() and
// upgraded to file logging after config loads.
var logManager *logging.Manager

var docfoundryCmd = &cobra.Command{
	Use:   "docfoundry",
	Short: "A Document Ingestion Pipeline for Vector Search",
	Long: "DocFoundry ingests documents from a library directory into a vector store.\n\n" +
		"A manager process scans the library and dispatches new files; extract, chunk, " +
		"and embed workers move each document through Redis-backed stage queues until " +
		"its chunks and embeddings land in the vector store. One supervisor process " +
		"(`docfoundry run`) launches and monitors the whole tree.\n\n",
	PersistentPreRunE: runInitialize,
}

func init() {
	// Bootstrap mode: stderr text only until config provides a log file.
	logManager = logging.NewManager()

	docfoundryCmd.PersistentFlags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	docfoundryCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")

	docfoundryCmd.AddCommand(run.RunCmd)
	docfoundryCmd.AddCommand(manager.ManagerCmd)
	docfoundryCmd.AddCommand(worker.WorkerCmd)
	docfoundryCmd.AddCommand(status.StatusCmd)
	docfoundryCmd.AddCommand(search.SearchCmd)
	docfoundryCmd.AddCommand(configcmd.ConfigCmd)
	docfoundryCmd.AddCommand(versioncmd.VersionCmd)
}

func runInitialize(cmd *cobra.Command, args []string) error {
	logger := logManager.Logger()

	if err := config.Init(); err != nil {
		return err
	}

	logFile := config.GetPath("log_file")
	levelStr := config.GetString("log_level")
	level, ok := logging.ParseLevel(levelStr)
	if !ok {
		level = logging.DefaultLevel
		if levelStr != "" {
			logger.Warn("invalid log level configured, using default", "configured", levelStr, "default", "info")
		}
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}

	if err := logManager.Upgrade(logFile, level); err != nil {
		logger.Warn("failed to enable file logging, continuing with stderr only", "error", err)
	}

	// Subcommands pick the managed logger up through slog.Default.
	slog.SetDefault(logManager.Logger())

	return nil
}

// Execute runs the root command.
func Execute() error {
	docfoundryCmd.SilenceErrors = true
	docfoundryCmd.SilenceUsage = true

	defer func() { _ = logManager.Close() }()

	err := docfoundryCmd.Execute()

	if err != nil {
		cmd, _, _ := docfoundryCmd.Find(os.Args[1:])
		if cmd == nil {
			cmd = docfoundryCmd
		}

		fmt.Printf("Error: %v\n", err)
		if !cmd.SilenceUsage {
			fmt.Printf("\n")
			cmd.SetOut(os.Stdout)
			_ = cmd.Usage()
		}

		return err
	}

	return nil
}
