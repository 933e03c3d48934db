package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Decrypter resolves stored credential material into cleartext. The
// gateway account id and auth secret are kept encrypted at rest and
// decrypted freshly for every request.
type Decrypter interface {
	Decrypt(value string) (string, error)
}

// Plaintext passes values through unchanged. Used when no secret key is
// configured, e.g. in local development against the gateway sandbox.
type Plaintext struct{}

// Decrypt returns the value as-is.
func (Plaintext) Decrypt(value string) (string, error) {
	return value, nil
}

// AESGCM decrypts values sealed with AES-256-GCM. The stored format is
// base64(nonce || ciphertext).
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM builds a decrypter from a hex-encoded 32-byte key.
func NewAESGCM(hexKey string) (*AESGCM, error) {
	key, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return nil, fmt.Errorf("secrets: decode key: %w", err)
	}
	if len(key) != 32 {
		return nil, errors.New("secrets: key must be 32 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("secrets: init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("secrets: init gcm: %w", err)
	}
	return &AESGCM{aead: aead}, nil
}

// Decrypt opens a sealed value.
func (d *AESGCM) Decrypt(value string) (string, error) {
	if d == nil || d.aead == nil {
		return "", errors.New("secrets: decrypter not configured")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("secrets: decode value: %w", err)
	}
	nonceSize := d.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New("secrets: value too short")
	}
	plain, err := d.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("secrets: open value: %w", err)
	}
	return string(plain), nil
}
