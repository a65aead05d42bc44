// Package secrets seals credentials stored at rest, such as SMTP passwords.
package secrets

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	keyLen   = 32
	nonceLen = 24
)

var (
	// ErrInvalidKey indicates the master key is not 32 hex-encoded bytes.
	ErrInvalidKey = errors.New("secrets: key must be 64 hex characters")
	// ErrOpen indicates the sealed value is malformed or was sealed with another key.
	ErrOpen = errors.New("secrets: cannot open sealed value")
)

// Box seals and opens short strings with a single symmetric key.
// The sealed form is base64(nonce || secretbox(plaintext)).
type Box struct {
	key [keyLen]byte
}

// NewBox parses a hex-encoded 32-byte key.
func NewBox(hexKey string) (*Box, error) {
	raw, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil || len(raw) != keyLen {
		return nil, ErrInvalidKey
	}
	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// GenerateKey returns a new random hex-encoded key.
func GenerateKey() (string, error) {
	k := make([]byte, keyLen)
	if _, err := rand.Read(k); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(k), nil
}

// Seal encrypts plaintext. The empty string seals to the empty string so
// that "no password" survives a round trip without a ciphertext.
func (b *Box) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	var nonce [nonceLen]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	sealed := secretbox.Seal(nonce[:], []byte(plaintext), &nonce, &b.key)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil || len(raw) < nonceLen+secretbox.Overhead {
		return "", ErrOpen
	}

	var nonce [nonceLen]byte
	copy(nonce[:], raw[:nonceLen])

	out, ok := secretbox.Open(nil, raw[nonceLen:], &nonce, &b.key)
	if !ok {
		return "", ErrOpen
	}
	return string(out), nil
}
