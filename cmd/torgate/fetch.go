package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/torgate/torgate"
	"github.com/torgate/torgate/internal/httpreq"
)

// defaultFetchLimit caps fetched responses at 8 MiB. Responses larger
// than the limit fail rather than arriving truncated.
const defaultFetchLimit = 8 << 20

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch a URL through a fresh Tor circuit",
		Long: `Fetch opens a session, builds a fresh circuit, performs a single HTTP
request through it, and prints the raw response (status line and headers
included) to stdout.

Examples:
  # Fetch a clearnet URL through Tor
  torgate fetch http://example.com/

  # Fetch an onion service
  torgate fetch http://duckduckgogg42xjoc72x3sjasowoarfbgcmvfimaftt6twagswzczad.onion/

  # Use the embedded Tor daemon via a configuration file
  torgate fetch --config torgate.yaml http://example.com/`,
		Args: cobra.ExactArgs(1),
		RunE: runFetchCmd,
	}

	cmd.Flags().StringP("config", "c", "", "Configuration file (YAML or TOML)")
	cmd.Flags().StringP("output", "o", "", "Write the response to a file instead of stdout")
	cmd.Flags().Int("max-size", defaultFetchLimit, "Maximum response size in bytes")

	return cmd
}

// runFetchCmd executes the fetch command.
func runFetchCmd(cmd *cobra.Command, args []string) error {
	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}
	outputPath, err := cmd.Flags().GetString("output")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("max-size")
	if err != nil {
		return err
	}
	// The verbose flag lives on the root command and is absent when the
	// command runs standalone in tests.
	verbose := false
	if f := cmd.Flags().Lookup("verbose"); f != nil {
		verbose, _ = cmd.Flags().GetBool("verbose") //nolint:errcheck // flag exists, checked above
	}

	gwOpts := []torgate.GatewayOption{torgate.WithLogWriter(cmd.ErrOrStderr())}
	if verbose {
		gwOpts = append(gwOpts, torgate.WithVerboseLogging())
	}
	g := torgate.NewGateway(gwOpts...)
	if configPath != "" {
		err = g.InitWithConfig(configPath)
	} else {
		err = g.Init()
	}
	if err != nil {
		return fmt.Errorf("failed to initialize session: %w", err)
	}

	ctx := cmd.Context()
	if err := g.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect to Tor: %w", err)
	}
	defer func() {
		if err := g.Disconnect(); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "Warning: disconnect failed: %v\n", err)
		}
	}()

	// A fresh circuit per invocation: fetches from separate runs never
	// share a Tor circuit.
	circuitID := "fetch-" + uuid.NewString()
	if err := g.CreateCircuit(ctx, circuitID); err != nil {
		return fmt.Errorf("failed to build circuit: %w", err)
	}

	resp, err := g.HTTPRequest(ctx, circuitID, httpreq.Request{URL: args[0]}, limit)
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", args[0], err)
	}

	if outputPath != "" {
		if err := os.WriteFile(outputPath, resp, 0o600); err != nil {
			return fmt.Errorf("failed to write response: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %d bytes to %s\n", len(resp), outputPath)
		return nil
	}

	_, err = cmd.OutOrStdout().Write(resp)
	return err
}
