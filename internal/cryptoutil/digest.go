// Package cryptoutil holds the small hashing and key helpers shared by the
// classifier, the report signer and configuration validation.
package cryptoutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// AuditHashLength is the number of hex characters kept from a SHA-256 digest
// when fingerprinting a redacted fragment.
const AuditHashLength = 16

// MinKeyBytes is the minimum HMAC key size accepted for report signing.
const MinKeyBytes = 32

// ShortDigest returns the first n hex characters of SHA-256(s). The value is
// deterministic, so identical fragments correlate across reports without the
// fragment itself being stored. n <= 0 or n > 64 returns the full digest.
func ShortDigest(s string, n int) string {
	sum := sha256.Sum256([]byte(s))
	full := hex.EncodeToString(sum[:])
	if n <= 0 || n > len(full) {
		return full
	}
	return full[:n]
}

// IsHexString reports whether s consists entirely of hexadecimal characters
// (0-9, a-f, A-F). It returns true for an empty string; callers check length
// separately.
func IsHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// DecodeKey interprets key as hex when it is 64+ even-length hex characters,
// otherwise as raw bytes. The result must be at least MinKeyBytes long.
func DecodeKey(key string) ([]byte, error) {
	n := len(key)
	if n >= 2*MinKeyBytes && n%2 == 0 && IsHexString(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil {
			return nil, fmt.Errorf("key hex decode: %w", err)
		}
		return decoded, nil
	}
	if n < MinKeyBytes {
		return nil, fmt.Errorf("key must be at least %d bytes or %d+ hex characters (got %d)", MinKeyBytes, 2*MinKeyBytes, n)
	}
	return []byte(key), nil
}
