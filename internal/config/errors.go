package config

import "errors"

// Configuration errors.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() for programmatic error handling while still providing
// human-readable messages.
var (
	// ErrConfigNotFound is returned when the configuration file does not exist.
	ErrConfigNotFound = errors.New("configuration file not found")

	// ErrUnsupportedFormat is returned when the configuration file
	// extension is neither YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported configuration format: expected .yaml, .yml, or .toml")

	// ErrNoProxyAddress is returned when no proxy address is configured
	// and the embedded Tor daemon is disabled.
	ErrNoProxyAddress = errors.New("no proxy address configured and embedded Tor disabled")

	// ErrInvalidTimeout is returned when a timeout is not positive.
	// A timeout of zero or negative would cause immediate failures.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidBridgeBound is returned when the bridge call bound is
	// not positive. A bound of zero would deadlock every operation.
	ErrInvalidBridgeBound = errors.New("invalid bridge call bound: must be positive")
)
