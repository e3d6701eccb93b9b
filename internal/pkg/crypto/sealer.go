// Package crypto seals adapter credentials before they are written to the
// configuration store.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const sealedPrefix = "v1:"

// Sealer encrypts and decrypts small blobs with a static secretbox key.
// A Sealer without a key passes data through unchanged.
type Sealer struct {
	key *[32]byte
}

// NewSealer builds a Sealer from a hex-encoded 32 byte key. An empty key
// disables sealing.
func NewSealer(hexKey string) (*Sealer, error) {
	if hexKey == "" {
		return &Sealer{}, nil
	}
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode credential key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("credential key must be 32 bytes, got %d", len(raw))
	}
	var key [32]byte
	copy(key[:], raw)
	return &Sealer{key: &key}, nil
}

// Enabled reports whether the sealer encrypts.
func (s *Sealer) Enabled() bool {
	return s != nil && s.key != nil
}

// Seal encrypts plaintext and returns a printable token.
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	if !s.Enabled() {
		return string(plaintext), nil
	}
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plaintext, &nonce, s.key)
	return sealedPrefix + base64.StdEncoding.EncodeToString(box), nil
}

// Open reverses Seal. Unsealed values are returned as is, so rows written
// before a key was configured stay readable.
func (s *Sealer) Open(token string) ([]byte, error) {
	if !strings.HasPrefix(token, sealedPrefix) {
		return []byte(token), nil
	}
	if !s.Enabled() {
		return nil, fmt.Errorf("value is sealed but no credential key is configured")
	}
	box, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(token, sealedPrefix))
	if err != nil {
		return nil, fmt.Errorf("decode sealed value: %w", err)
	}
	if len(box) < 24 {
		return nil, fmt.Errorf("sealed value too short")
	}
	var nonce [24]byte
	copy(nonce[:], box[:24])
	out, ok := secretbox.Open(nil, box[24:], &nonce, s.key)
	if !ok {
		return nil, fmt.Errorf("sealed value failed authentication")
	}
	return out, nil
}
