// Package log provides secure logging for the torgate boundary.
//
// The boundary reports every failure to callers as a bare failure code;
// the log is the side channel that says why. Because log lines routinely
// mention SOCKS credentials (which double as circuit isolation keys) and
// onion service material, all attributes pass through a sanitizing
// slog.Handler before reaching the underlying sink.
package log
