// Package main provides the entry point for the torgate CLI.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command for torgate.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "torgate",
		Short: "Synchronous boundary over the Tor network",
		Long: `torgate routes circuits and streams through the Tor network and exposes
them behind a synchronous, handle-based boundary.

The CLI verifies Tor connectivity, performs one-shot fetches through
fresh circuits, and generates configuration files. By default it talks
to an external Tor SOCKS proxy on 127.0.0.1:9050; use --config to point
at a configuration file enabling the embedded daemon.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Add subcommands
	cmd.AddCommand(NewCheckCmd())
	cmd.AddCommand(NewFetchCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
