// File: internal/infra/security/token_sealer.go
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// TokenSealer encrypts issued bearer tokens so a paid session can hand its
// token to the buyer later without the store ever holding plaintext.
// AES-256-GCM with a random nonce per message; output is base64(nonce || ct).
type TokenSealer struct {
	gcm cipher.AEAD
}

// NewTokenSealer takes a base64 (std or url, padded or not) encoded 32 byte key.
func NewTokenSealer(encodedKey string) (*TokenSealer, error) {
	key, err := decodeKey(encodedKey)
	if err != nil {
		return nil, err
	}
	return newSealer(key)
}

// NewEphemeralTokenSealer uses a random key that lives as long as the process.
// Tokens sealed before a restart can no longer be opened.
func NewEphemeralTokenSealer() (*TokenSealer, error) {
	key := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("rand key: %w", err)
	}
	return newSealer(key)
}

func newSealer(key []byte) (*TokenSealer, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("token key must be 32 bytes; got %d", len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCM: %w", err)
	}
	return &TokenSealer{gcm: gcm}, nil
}

func decodeKey(s string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if b, err := enc.DecodeString(s); err == nil {
			return b, nil
		}
	}
	return nil, errors.New("token key is not valid base64")
}

func (s *TokenSealer) Seal(token string) (string, error) {
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}
	ct := s.gcm.Seal(nonce, nonce, []byte(token), nil)
	return base64.StdEncoding.EncodeToString(ct), nil
}

func (s *TokenSealer) Open(sealed string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}
	ns := s.gcm.NonceSize()
	if len(data) < ns {
		return "", errors.New("sealed token too short")
	}
	nonce, ct := data[:ns], data[ns:]
	pt, err := s.gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("gcm open: %w", err)
	}
	return string(pt), nil
}
