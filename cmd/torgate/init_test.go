package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/torgate/torgate/internal/config"
)

func TestInitCmd(t *testing.T) {
	t.Parallel()

	t.Run("creates a loadable config file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "torgate.yaml")
		cmd := NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"-o", path})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		// The generated file must round-trip through the loader.
		cfg, err := config.Load(path)
		if err != nil {
			t.Fatalf("generated config failed to load: %v", err)
		}
		if cfg.ProxyAddress != config.DefaultProxyAddress {
			t.Errorf("proxy address = %q, want %q", cfg.ProxyAddress, config.DefaultProxyAddress)
		}
		if err := cfg.Validate(); err != nil {
			t.Errorf("generated config failed validation: %v", err)
		}
	})

	t.Run("refuses to overwrite without force", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "torgate.yaml")
		if err := os.WriteFile(path, []byte("proxy_address: \"1.2.3.4:9050\"\n"), 0o600); err != nil {
			t.Fatalf("failed to write existing file: %v", err)
		}

		cmd := NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs([]string{"-o", path})

		if err := cmd.Execute(); err == nil {
			t.Error("expected error when file exists")
		}
	})

	t.Run("overwrites with force", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "torgate.yaml")
		if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
			t.Fatalf("failed to write existing file: %v", err)
		}

		cmd := NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"-o", path, "-f"})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := config.Load(path); err != nil {
			t.Errorf("overwritten config failed to load: %v", err)
		}
	})

	t.Run("creates parent directories", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "nested", "dir", "torgate.yaml")
		cmd := NewInitCmd()
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetArgs([]string{"-o", path})

		if err := cmd.Execute(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, err := os.Stat(path); err != nil {
			t.Errorf("config file not created: %v", err)
		}
	})
}
