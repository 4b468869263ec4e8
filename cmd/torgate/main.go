// Package main provides the entry point for the torgate CLI.
//
// torgate is a synchronous boundary over the Tor network. The CLI is a
// thin operational companion: it verifies proxy connectivity, fetches
// URLs through fresh circuits, and generates configuration files.
//
// Usage:
//
//	torgate check
//	torgate fetch <url>
//	torgate init
//
// See --help for all available options.
package main

// main is the entry point for torgate.
func main() {
	Execute()
}
