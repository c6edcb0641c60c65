package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/dativo-io/piiredact/internal/cryptoutil"
)

const signaturePrefix = "hmac-sha256:"

// Signer creates and verifies HMAC-SHA256 signatures over report JSON.
type Signer struct {
	key []byte
}

// NewSigner creates a signer. key must be at least 32 raw bytes or 64+ hex
// characters.
func NewSigner(key string) (*Signer, error) {
	b, err := cryptoutil.DecodeKey(key)
	if err != nil {
		return nil, fmt.Errorf("signing key: %w", err)
	}
	return &Signer{key: b}, nil
}

// Sign returns the signature for data.
func (s *Signer) Sign(data []byte) string {
	h := hmac.New(sha256.New, s.key)
	h.Write(data)
	return signaturePrefix + hex.EncodeToString(h.Sum(nil))
}

// Verify checks signature against data in constant time.
func (s *Signer) Verify(data []byte, signature string) bool {
	return hmac.Equal([]byte(s.Sign(data)), []byte(signature))
}
