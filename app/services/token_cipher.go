package services

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const sealedTokenPrefix = "enc:v1:"

var ErrTokenUnreadable = errors.New("stored platform token cannot be decrypted")

// TokenCipher protects platform access tokens at rest.
// Open passes values without the sealed prefix through unchanged, so rows written
// before a key was configured keep working.
type TokenCipher interface {
	Seal(token string) (string, error)
	Open(stored string) (string, error)
}

// NewTokenCipher builds an XChaCha20-Poly1305 cipher from a base64 encoded 32 byte key.
// An empty key stores tokens as given.
func NewTokenCipher(encodedKey string) (TokenCipher, error) {
	encodedKey = strings.TrimSpace(encodedKey)
	if encodedKey == "" {
		return plaintextCipher{}, nil
	}
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("token encryption key is not valid base64: %w", err)
	}
	if len(key) != chacha20poly1305.KeySize {
		return nil, fmt.Errorf("token encryption key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))
	}
	return &aeadCipher{key: key}, nil
}

type plaintextCipher struct{}

func (plaintextCipher) Seal(token string) (string, error) { return token, nil }

func (plaintextCipher) Open(stored string) (string, error) {
	if strings.HasPrefix(stored, sealedTokenPrefix) {
		return "", ErrTokenUnreadable
	}
	return stored, nil
}

type aeadCipher struct {
	key []byte
}

func (c *aeadCipher) Seal(token string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(token)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(token), nil)
	return sealedTokenPrefix + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (c *aeadCipher) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedTokenPrefix) {
		return stored, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimPrefix(stored, sealedTokenPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnreadable, err)
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrTokenUnreadable
	}
	plain, err := aead.Open(nil, raw[:aead.NonceSize()], raw[aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTokenUnreadable, err)
	}
	return string(plain), nil
}
