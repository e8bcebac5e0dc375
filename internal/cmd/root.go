// Package cmd implements the CLI commands for tether.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xdg/tether/internal/version"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "tether",
	Short: "Remote command execution agent",
	Long: `Tether runs commands on behalf of authenticated remote callers.

The agent listens on a local control socket, authenticates each request
against its credential store, and executes the requested command with a
bounded concurrency pool, a per-command timeout, and captured output
returned to the caller.`,
	Version: version.Version,
}

// Execute runs the root command and returns any error.
func Execute() error {
	return rootCmd.Execute()
}
