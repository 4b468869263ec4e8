// Package tor provides Tor network connectivity for the torgate boundary.
//
// It validates and probes the SOCKS5 proxy, hands out per-circuit
// isolated dialers, manages an optional embedded Tor daemon via tornago,
// and validates v3 onion addresses before they reach the network.
package tor
