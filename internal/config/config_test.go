package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefault tests the default configuration.
func TestDefault(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.ProxyAddress != DefaultProxyAddress {
		t.Errorf("ProxyAddress = %q, expected %q", cfg.ProxyAddress, DefaultProxyAddress)
	}
	if cfg.ConnectTimeout != DefaultConnectTimeout {
		t.Errorf("ConnectTimeout = %v, expected %v", cfg.ConnectTimeout, DefaultConnectTimeout)
	}
	if cfg.MaxBridgeCalls != DefaultMaxBridgeCalls {
		t.Errorf("MaxBridgeCalls = %d, expected %d", cfg.MaxBridgeCalls, DefaultMaxBridgeCalls)
	}
	if cfg.JournalEnabled {
		t.Error("journal should be disabled by default")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

// TestValidate tests configuration validation.
func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:    "missing proxy without embedded tor",
			mutate:  func(c *Config) { c.ProxyAddress = "" },
			wantErr: ErrNoProxyAddress,
		},
		{
			name: "missing proxy with embedded tor is fine",
			mutate: func(c *Config) {
				c.ProxyAddress = ""
				c.UseEmbeddedTor = true
			},
			wantErr: nil,
		},
		{
			name:    "zero connect timeout",
			mutate:  func(c *Config) { c.ConnectTimeout = 0 },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "negative io timeout",
			mutate:  func(c *Config) { c.IOTimeout = -time.Second },
			wantErr: ErrInvalidTimeout,
		},
		{
			name:    "zero bridge bound",
			mutate:  func(c *Config) { c.MaxBridgeCalls = 0 },
			wantErr: ErrInvalidBridgeBound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

// TestLoad tests configuration file loading in both formats.
func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("yaml file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "torgate.yaml")
		content := `proxy_address: "127.0.0.1:9150"
connect_timeout: "90s"
journal_enabled: true
verbose: true
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ProxyAddress != "127.0.0.1:9150" {
			t.Errorf("ProxyAddress = %q, expected 127.0.0.1:9150", cfg.ProxyAddress)
		}
		if cfg.ConnectTimeout != 90*time.Second {
			t.Errorf("ConnectTimeout = %v, expected 90s", cfg.ConnectTimeout)
		}
		if !cfg.JournalEnabled {
			t.Error("expected journal to be enabled")
		}
		if !cfg.Verbose {
			t.Error("expected verbose to be enabled")
		}
		// Unset fields must fall back to defaults.
		if cfg.IOTimeout != DefaultIOTimeout {
			t.Errorf("IOTimeout = %v, expected default %v", cfg.IOTimeout, DefaultIOTimeout)
		}
	})

	t.Run("toml file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "torgate.toml")
		content := `proxy_address = "127.0.0.1:9250"
use_embedded_tor = false
handshake_timeout = "15s"
max_bridge_calls = 8
`
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.ProxyAddress != "127.0.0.1:9250" {
			t.Errorf("ProxyAddress = %q, expected 127.0.0.1:9250", cfg.ProxyAddress)
		}
		if cfg.HandshakeTimeout != 15*time.Second {
			t.Errorf("HandshakeTimeout = %v, expected 15s", cfg.HandshakeTimeout)
		}
		if cfg.MaxBridgeCalls != 8 {
			t.Errorf("MaxBridgeCalls = %d, expected 8", cfg.MaxBridgeCalls)
		}
	})

	t.Run("missing file returns ErrConfigNotFound", func(t *testing.T) {
		t.Parallel()

		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("unknown extension fails", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "torgate.ini")
		if err := os.WriteFile(path, []byte("proxy=x"), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		_, err := Load(path)
		if !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})

	t.Run("bad duration fails", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "torgate.yaml")
		if err := os.WriteFile(path, []byte(`connect_timeout: "soon"`), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		if _, err := Load(path); err == nil {
			t.Error("expected error for unparseable duration")
		}
	})

	t.Run("malformed yaml fails", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "torgate.yaml")
		if err := os.WriteFile(path, []byte(":\n\t-bad"), 0600); err != nil {
			t.Fatalf("failed to write config: %v", err)
		}

		if _, err := Load(path); err == nil {
			t.Error("expected error for malformed YAML")
		}
	})
}
