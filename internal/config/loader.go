package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk schema. Durations are strings in Go
// duration syntax ("90s", "2m") because neither YAML nor TOML decodes
// time.Duration directly.
type fileConfig struct {
	ProxyAddress      string `yaml:"proxy_address" toml:"proxy_address"`
	UseEmbeddedTor    bool   `yaml:"use_embedded_tor" toml:"use_embedded_tor"`
	ConnectTimeout    string `yaml:"connect_timeout" toml:"connect_timeout"`
	HandshakeTimeout  string `yaml:"handshake_timeout" toml:"handshake_timeout"`
	IOTimeout         string `yaml:"io_timeout" toml:"io_timeout"`
	TorStartupTimeout string `yaml:"tor_startup_timeout" toml:"tor_startup_timeout"`
	MaxBridgeCalls    int    `yaml:"max_bridge_calls" toml:"max_bridge_calls"`
	JournalEnabled    bool   `yaml:"journal_enabled" toml:"journal_enabled"`
	JournalDir        string `yaml:"journal_dir" toml:"journal_dir"`
	Verbose           bool   `yaml:"verbose" toml:"verbose"`
}

// Load reads a configuration file and returns the resulting Config with
// unset fields filled from defaults. The format is chosen by extension:
// .yaml/.yml use YAML, .toml uses TOML. TOML is supported because the
// configuration files of existing Tor client deployments are TOML and
// callers point the boundary at them unchanged.
//
// If the file does not exist, Load returns ErrConfigNotFound.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, ErrConfigNotFound
		}
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &fc); err != nil {
			return Config{}, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return Config{}, ErrUnsupportedFormat
	}

	cfg := Config{
		ProxyAddress:   fc.ProxyAddress,
		UseEmbeddedTor: fc.UseEmbeddedTor,
		MaxBridgeCalls: fc.MaxBridgeCalls,
		JournalEnabled: fc.JournalEnabled,
		JournalDir:     fc.JournalDir,
		Verbose:        fc.Verbose,
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"connect_timeout", fc.ConnectTimeout, &cfg.ConnectTimeout},
		{"handshake_timeout", fc.HandshakeTimeout, &cfg.HandshakeTimeout},
		{"io_timeout", fc.IOTimeout, &cfg.IOTimeout},
		{"tor_startup_timeout", fc.TorStartupTimeout, &cfg.TorStartupTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, fmt.Errorf("failed to parse %s: %w", d.name, err)
		}
		*d.dst = parsed
	}

	cfg.normalize()
	return cfg, nil
}
