package notify

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

// SecretBox encrypts provider credentials at rest with
// nacl/secretbox (XSalsa20-Poly1305). The 24-byte nonce is prepended
// to the ciphertext.
type SecretBox struct {
	key [32]byte
}

// NewSecretBox builds a SecretBox from a 64-hex-character key.
func NewSecretBox(hexKey string) (*SecretBox, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("encryption key is not hex: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes, got %d", len(raw))
	}
	var box SecretBox
	copy(box.key[:], raw)
	return &box, nil
}

// Seal encrypts plaintext.
func (s *SecretBox) Seal(plain []byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

// Open decrypts a sealed credential blob.
func (s *SecretBox) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < 24 {
		return nil, errors.New("sealed blob too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plain, ok := secretbox.Open(nil, sealed[24:], &nonce, &s.key)
	if !ok {
		return nil, errors.New("credential decryption failed")
	}
	return plain, nil
}
