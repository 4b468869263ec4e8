package tor

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Onion address constants.
const (
	// OnionV3Length is the length of a v3 onion address without the ".onion" suffix.
	// V3 addresses are 56 characters of base32-encoded data.
	OnionV3Length = 56

	// OnionV3Version is the version byte for v3 onion addresses.
	OnionV3Version = 0x03

	// OnionSuffix is the common suffix for all onion addresses.
	OnionSuffix = ".onion"
)

// onionV3Pattern matches v3 onion addresses (56 base32 characters + .onion).
// Base32 uses lowercase a-z and digits 2-7 (no 0, 1, 8, 9 to avoid confusion).
var onionV3Pattern = regexp.MustCompile(`^[a-z2-7]{56}\.onion$`)

// onionV2Pattern matches v2 onion addresses (16 base32 characters + .onion).
// These are deprecated but we detect them to reject them with a specific error.
var onionV2Pattern = regexp.MustCompile(`^[a-z2-7]{16}\.onion$`)

// checksumPrefix is the prefix used in v3 onion address checksum calculation.
// This is specified in the Tor rendezvous specification.
var checksumPrefix = []byte(".onion checksum")

// Onion address validation errors.
var (
	// ErrInvalidOnionAddress is returned when a .onion target host fails
	// format or checksum validation.
	ErrInvalidOnionAddress = newOnionError("invalid onion address")

	// ErrV2AddressDeprecated is returned when a v2 address is provided.
	// V2 addresses stopped working in October 2021.
	ErrV2AddressDeprecated = newOnionError("v2 onion addresses are deprecated and no longer functional")
)

// IsValidV3Address checks if the given address is a valid v3 onion address.
// It performs both format validation and checksum verification.
//
// Design decision: We perform full checksum validation rather than just
// pattern matching because:
// 1. It catches typos and corrupted addresses before a wasted circuit dial
// 2. It verifies the address was properly generated
// 3. It matches what Tor itself does when connecting
//
// The address should be lowercase and include the ".onion" suffix.
func IsValidV3Address(address string) bool {
	// Normalize to lowercase
	address = strings.ToLower(address)

	// Check basic format with regex
	if !onionV3Pattern.MatchString(address) {
		return false
	}

	// Extract the base32-encoded part (without .onion suffix)
	onionPart := strings.TrimSuffix(address, OnionSuffix)

	// Decode from base32
	// The Tor spec uses standard base32 encoding (RFC 4648)
	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(onionPart))
	if err != nil {
		return false
	}

	// Decoded data should be exactly 35 bytes:
	// - 32 bytes: ed25519 public key
	// - 2 bytes: checksum
	// - 1 byte: version
	if len(decoded) != 35 {
		return false
	}

	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]

	// Verify version is 0x03 (v3)
	if version != OnionV3Version {
		return false
	}

	// Verify checksum
	// Checksum = first 2 bytes of SHA3-256(".onion checksum" || pubkey || version)
	expectedChecksum := computeV3Checksum(pubkey, version)

	return checksum[0] == expectedChecksum[0] && checksum[1] == expectedChecksum[1]
}

// computeV3Checksum computes the checksum bytes for a v3 onion address.
// The checksum is the first 2 bytes of SHA3-256(".onion checksum" || pubkey || version).
func computeV3Checksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)

	// First 2 bytes are the checksum
	return hash[:2]
}

// IsV2Address checks if the given address matches the v2 onion address format.
// V2 addresses were deprecated in October 2021 and no longer work on the Tor network.
func IsV2Address(address string) bool {
	return onionV2Pattern.MatchString(strings.ToLower(address))
}

// ValidateTargetHost checks a stream target host before it is sent to the
// proxy. Non-onion hostnames pass through untouched: Tor resolves them at
// the exit relay and the boundary has no business second-guessing DNS.
// Onion hosts are validated fully so a mistyped address fails here with a
// clear error instead of as an opaque proxy failure after a circuit dial.
func ValidateTargetHost(host string) error {
	if host == "" {
		return ErrInvalidOnionAddress
	}

	if !strings.HasSuffix(strings.ToLower(host), OnionSuffix) {
		return nil
	}

	if IsV2Address(host) {
		return ErrV2AddressDeprecated
	}
	if !IsValidV3Address(host) {
		return ErrInvalidOnionAddress
	}
	return nil
}

// ComputeV3AddressFromPublicKey computes the v3 onion address from an ed25519 public key.
// This is useful for verifying that a known public key matches an address.
//
// The public key must be exactly 32 bytes (ed25519 public key size).
func ComputeV3AddressFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrInvalidOnionAddress
	}

	checksum := computeV3Checksum(pubkey, OnionV3Version)

	// Construct address data: pubkey (32) + checksum (2) + version (1)
	addressData := make([]byte, 35)
	copy(addressData[:32], pubkey)
	copy(addressData[32:34], checksum)
	addressData[34] = OnionV3Version

	encoded := base32.StdEncoding.EncodeToString(addressData)
	return strings.ToLower(encoded) + OnionSuffix, nil
}

// onionError is a custom error type for onion address errors.
type onionError struct {
	message string
}

// newOnionError creates a new onion error with the given message.
func newOnionError(message string) *onionError {
	return &onionError{message: message}
}

// Error implements the error interface.
func (e *onionError) Error() string {
	return e.message
}
