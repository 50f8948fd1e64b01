// Package config provides the config parent command and subcommands.
package config

import (
	"github.com/spf13/cobra"

	"github.com/docfoundry/docfoundry/cmd/config/subcommands"
)

// ConfigCmd is the parent command for all config-related subcommands.
var ConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage docfoundry configuration",
	Long: "Manage docfoundry configuration.\n\n" +
		"The config command allows you to view and validate the docfoundry " +
		"configuration. Configuration is stored in a YAML file located at " +
		"~/.docfoundry/config.yaml by default.",
}

func init() {
	ConfigCmd.AddCommand(subcommands.ShowCmd)
	ConfigCmd.AddCommand(subcommands.ValidateCmd)
}
