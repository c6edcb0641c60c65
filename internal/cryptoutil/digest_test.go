package cryptoutil

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShortDigest(t *testing.T) {
	// sha256("abc") = ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad
	assert.Equal(t, "ba7816bf8f01cfea", ShortDigest("abc", AuditHashLength))
	assert.Len(t, ShortDigest("anything", AuditHashLength), AuditHashLength)
	assert.Equal(t, ShortDigest("123-45-6789", 16), ShortDigest("123-45-6789", 16), "digest must be deterministic")
	assert.NotEqual(t, ShortDigest("123-45-6789", 16), ShortDigest("987-65-4321", 16))
	assert.Len(t, ShortDigest("abc", 0), 64)
	assert.Len(t, ShortDigest("abc", 100), 64)
}

func TestIsHexString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", true},
		{"lowercase hex", "deadbeef", true},
		{"uppercase hex", "DEADBEEF", true},
		{"mixed case", "DeAdBeEf", true},
		{"contains g", "0123abcg", false},
		{"space", "ab cd", false},
		{"newline", "abcd\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsHexString(tt.in))
		})
	}
}

func TestDecodeKey(t *testing.T) {
	t.Run("raw 32 bytes", func(t *testing.T) {
		key, err := DecodeKey("test-signing-key-1234567890123456")
		require.NoError(t, err)
		assert.Len(t, key, 33)
	})
	t.Run("hex 64 chars", func(t *testing.T) {
		key, err := DecodeKey(strings.Repeat("ab", 32))
		require.NoError(t, err)
		assert.Len(t, key, 32)
	})
	t.Run("too short", func(t *testing.T) {
		_, err := DecodeKey("short")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "at least 32 bytes")
	})
}
