package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/torgate/torgate/internal/config"
	"github.com/torgate/torgate/internal/tor"
)

// NewCheckCmd creates the check command.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify Tor proxy connectivity",
		Long: `Check connects to the configured Tor SOCKS5 proxy and verifies that it
speaks the SOCKS5 protocol and accepts onion-address connect requests.

Examples:
  # Check the default proxy on 127.0.0.1:9050
  torgate check

  # Check a proxy on another address
  torgate check --proxy 127.0.0.1:9150`,
		RunE: runCheckCmd,
	}

	cmd.Flags().StringP("proxy", "p", config.DefaultProxyAddress,
		"Tor SOCKS5 proxy address to check")

	return cmd
}

// runCheckCmd executes the check command.
func runCheckCmd(cmd *cobra.Command, _ []string) error {
	proxyAddr, err := cmd.Flags().GetString("proxy")
	if err != nil {
		return err
	}

	client, err := tor.NewClient(proxyAddr, 10*time.Second)
	if err != nil {
		return fmt.Errorf("invalid proxy address %q: %w", proxyAddr, err)
	}

	status := client.CheckConnection(cmd.Context())
	if status != tor.ProxyStatusOK {
		return fmt.Errorf("proxy %s: %w", proxyAddr, status.Error())
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Tor proxy OK at %s\n", proxyAddr)
	return nil
}
