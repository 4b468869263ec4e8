package tor

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

// knownV3Address returns a checksum-valid v3 address derived from a
// fixed public key, so tests do not depend on any real service.
func knownV3Address(t *testing.T) string {
	t.Helper()

	pubkey := bytes.Repeat([]byte{0x42}, 32)
	addr, err := ComputeV3AddressFromPublicKey(pubkey)
	if err != nil {
		t.Fatalf("failed to compute address: %v", err)
	}
	return addr
}

// TestIsValidV3Address tests v3 onion address validation.
func TestIsValidV3Address(t *testing.T) {
	t.Parallel()

	t.Run("computed address validates", func(t *testing.T) {
		t.Parallel()

		addr := knownV3Address(t)
		if !IsValidV3Address(addr) {
			t.Errorf("IsValidV3Address(%q) = false, expected true", addr)
		}
	})

	t.Run("uppercase input is normalized", func(t *testing.T) {
		t.Parallel()

		addr := strings.ToUpper(knownV3Address(t))
		if !IsValidV3Address(addr) {
			t.Errorf("IsValidV3Address(%q) = false, expected true", addr)
		}
	})

	t.Run("corrupted checksum fails", func(t *testing.T) {
		t.Parallel()

		addr := knownV3Address(t)
		// Flip one base32 character; the checksum no longer matches.
		var corrupted string
		if addr[0] == 'a' {
			corrupted = "b" + addr[1:]
		} else {
			corrupted = "a" + addr[1:]
		}
		if IsValidV3Address(corrupted) {
			t.Errorf("IsValidV3Address(%q) = true for corrupted address", corrupted)
		}
	})

	tests := []struct {
		name    string
		address string
	}{
		{"empty string", ""},
		{"missing suffix", strings.Repeat("a", 56)},
		{"too short", strings.Repeat("a", 16) + ".onion"},
		{"too long", strings.Repeat("a", 57) + ".onion"},
		{"invalid base32 characters", strings.Repeat("1", 56) + ".onion"},
		{"clearnet domain", "example.org"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if IsValidV3Address(tt.address) {
				t.Errorf("IsValidV3Address(%q) = true, expected false", tt.address)
			}
		})
	}
}

// TestIsV2Address tests deprecated v2 address detection.
func TestIsV2Address(t *testing.T) {
	t.Parallel()

	if !IsV2Address("abcdefghij234567.onion") {
		t.Error("expected 16-character address to be detected as v2")
	}
	if IsV2Address(strings.Repeat("a", 56) + ".onion") {
		t.Error("v3-length address detected as v2")
	}
	if IsV2Address("example.org") {
		t.Error("clearnet domain detected as v2")
	}
}

// TestValidateTargetHost tests the pre-dial host check.
func TestValidateTargetHost(t *testing.T) {
	t.Parallel()

	t.Run("clearnet host passes through", func(t *testing.T) {
		t.Parallel()
		if err := ValidateTargetHost("example.org"); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("valid v3 onion host passes", func(t *testing.T) {
		t.Parallel()
		if err := ValidateTargetHost(knownV3Address(t)); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("empty host fails", func(t *testing.T) {
		t.Parallel()
		if err := ValidateTargetHost(""); err == nil {
			t.Error("expected error for empty host")
		}
	})

	t.Run("v2 onion host is rejected with specific error", func(t *testing.T) {
		t.Parallel()
		err := ValidateTargetHost("abcdefghij234567.onion")
		if !errors.Is(err, ErrV2AddressDeprecated) {
			t.Errorf("expected ErrV2AddressDeprecated, got %v", err)
		}
	})

	t.Run("malformed onion host is rejected", func(t *testing.T) {
		t.Parallel()
		err := ValidateTargetHost("notalidonionaddress.onion")
		if !errors.Is(err, ErrInvalidOnionAddress) {
			t.Errorf("expected ErrInvalidOnionAddress, got %v", err)
		}
	})
}

// TestComputeV3AddressFromPublicKey tests address derivation.
func TestComputeV3AddressFromPublicKey(t *testing.T) {
	t.Parallel()

	t.Run("wrong key size fails", func(t *testing.T) {
		t.Parallel()
		if _, err := ComputeV3AddressFromPublicKey(make([]byte, 31)); err == nil {
			t.Error("expected error for short key")
		}
	})

	t.Run("derived address has onion suffix and correct length", func(t *testing.T) {
		t.Parallel()
		addr := knownV3Address(t)
		if !strings.HasSuffix(addr, OnionSuffix) {
			t.Errorf("address %q missing suffix", addr)
		}
		if len(addr) != OnionV3Length+len(OnionSuffix) {
			t.Errorf("address length = %d, expected %d", len(addr), OnionV3Length+len(OnionSuffix))
		}
	})
}
