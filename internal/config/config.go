package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// These values are chosen for Tor network characteristics: multi-hop
// circuits make every operation slower than its clearnet equivalent, so
// the timeouts are generous.
const (
	// DefaultProxyAddress is the standard Tor SOCKS5 proxy address.
	// Port 9050 is the default for the Tor daemon's SOCKS port.
	// We use 127.0.0.1 instead of localhost to avoid DNS resolution overhead
	// and potential issues with IPv6 resolution on some systems.
	DefaultProxyAddress = "127.0.0.1:9050"

	// DefaultConnectTimeout bounds circuit builds and stream dials.
	// Tor circuit construction routinely takes tens of seconds under
	// load, so a short timeout would produce spurious failures.
	DefaultConnectTimeout = 60 * time.Second

	// DefaultHandshakeTimeout bounds the TLS handshake on top of an
	// already-established stream. The stream exists at that point, so
	// this can be tighter than the connect timeout.
	DefaultHandshakeTimeout = 30 * time.Second

	// DefaultIOTimeout bounds individual read, write, and flush
	// operations on open streams.
	DefaultIOTimeout = 120 * time.Second

	// DefaultMaxBridgeCalls is the maximum number of boundary calls
	// blocked on network operations at once. Callers beyond the bound
	// queue rather than spawning unbounded worker goroutines.
	DefaultMaxBridgeCalls = 64

	// DefaultTorStartupTimeout is the maximum time to wait for the
	// embedded Tor daemon to bootstrap. 3 minutes is typically enough,
	// but may need to be raised on slow connections.
	DefaultTorStartupTimeout = 3 * time.Minute

	// AppName is the application name used for XDG directory paths.
	AppName = "torgate"
)

// Config holds all configuration options for the torgate boundary.
// It is populated from defaults or a configuration file at Init time and
// passed into the gateway by value; there is no global configuration.
type Config struct {
	// ProxyAddress is the address of an external Tor SOCKS5 proxy in
	// "host:port" format. Ignored when UseEmbeddedTor is true.
	ProxyAddress string

	// UseEmbeddedTor starts an embedded Tor daemon on Connect instead of
	// using an external proxy. Bootstrap takes 1-3 minutes.
	UseEmbeddedTor bool

	// ConnectTimeout bounds circuit builds and stream dials.
	ConnectTimeout time.Duration

	// HandshakeTimeout bounds TLS handshakes on streams.
	HandshakeTimeout time.Duration

	// IOTimeout bounds individual stream read/write/flush operations.
	IOTimeout time.Duration

	// TorStartupTimeout bounds embedded Tor daemon bootstrap.
	TorStartupTimeout time.Duration

	// MaxBridgeCalls caps concurrently blocked boundary calls.
	MaxBridgeCalls int

	// JournalEnabled turns on the SQLite lifecycle journal. The journal
	// is the side channel for diagnosing failures that the boundary
	// itself only reports as a bare failure code.
	JournalEnabled bool

	// JournalDir is the directory holding the journal database.
	// Empty means the XDG data directory for the application.
	JournalDir string

	// Verbose enables debug-level logging.
	Verbose bool
}

// Default returns the configuration used when Init is called without a
// configuration file.
func Default() Config {
	return Config{
		ProxyAddress:      DefaultProxyAddress,
		ConnectTimeout:    DefaultConnectTimeout,
		HandshakeTimeout:  DefaultHandshakeTimeout,
		IOTimeout:         DefaultIOTimeout,
		TorStartupTimeout: DefaultTorStartupTimeout,
		MaxBridgeCalls:    DefaultMaxBridgeCalls,
		JournalDir:        DefaultJournalDir(),
	}
}

// DefaultJournalDir returns the XDG data directory for the journal.
func DefaultJournalDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// Validate checks the configuration for values that would make the
// boundary misbehave rather than merely perform badly.
func (c Config) Validate() error {
	if !c.UseEmbeddedTor && c.ProxyAddress == "" {
		return ErrNoProxyAddress
	}
	if c.ConnectTimeout <= 0 || c.HandshakeTimeout <= 0 || c.IOTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.MaxBridgeCalls <= 0 {
		return ErrInvalidBridgeBound
	}
	return nil
}

// normalize fills zero-valued fields with defaults after file loading,
// so a partial configuration file only overrides what it names.
func (c *Config) normalize() {
	def := Default()
	if c.ProxyAddress == "" {
		c.ProxyAddress = def.ProxyAddress
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.HandshakeTimeout == 0 {
		c.HandshakeTimeout = def.HandshakeTimeout
	}
	if c.IOTimeout == 0 {
		c.IOTimeout = def.IOTimeout
	}
	if c.TorStartupTimeout == 0 {
		c.TorStartupTimeout = def.TorStartupTimeout
	}
	if c.MaxBridgeCalls == 0 {
		c.MaxBridgeCalls = def.MaxBridgeCalls
	}
	if c.JournalDir == "" {
		c.JournalDir = def.JournalDir
	}
}
