package secrets

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	boxKeySize   = 32
	boxNonceSize = 24
	boxPrefix    = "sb1:"
)

var (
	// ErrInvalidBoxKey is returned when the sealing key is not 32 bytes of base64.
	ErrInvalidBoxKey = errors.New("secretbox key must be 32 bytes base64")
	// ErrOpenFailed is returned when a sealed value fails authentication.
	ErrOpenFailed = errors.New("secretbox open failed")
)

// Box seals short values (MFA shared secrets) with XSalsa20-Poly1305.
// Sealed values are "sb1:" + base64(nonce || ciphertext).
type Box struct {
	key [boxKeySize]byte
}

// NewBox builds a Box from a base64 encoded 32 byte key.
func NewBox(encodedKey string) (*Box, error) {
	raw, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil || len(raw) != boxKeySize {
		return nil, ErrInvalidBoxKey
	}
	b := &Box{}
	copy(b.key[:], raw)
	return b, nil
}

// NewBoxFromSource loads the key named name from src.
func NewBoxFromSource(ctx context.Context, src Source, name string) (*Box, error) {
	v, err := src.GetSecret(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load secretbox key: %w", err)
	}
	return NewBox(v)
}

func (b *Box) Seal(plain string) (string, error) {
	var nonce [boxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", err
	}
	out := secretbox.Seal(nonce[:], []byte(plain), &nonce, &b.key)
	return boxPrefix + base64.RawURLEncoding.EncodeToString(out), nil
}

func (b *Box) Open(sealed string) (string, error) {
	if len(sealed) <= len(boxPrefix) || sealed[:len(boxPrefix)] != boxPrefix {
		return "", ErrOpenFailed
	}
	raw, err := base64.RawURLEncoding.DecodeString(sealed[len(boxPrefix):])
	if err != nil || len(raw) < boxNonceSize+secretbox.Overhead {
		return "", ErrOpenFailed
	}
	var nonce [boxNonceSize]byte
	copy(nonce[:], raw[:boxNonceSize])
	plain, ok := secretbox.Open(nil, raw[boxNonceSize:], &nonce, &b.key)
	if !ok {
		return "", ErrOpenFailed
	}
	return string(plain), nil
}

// GenerateBoxKey returns a random key in the encoding NewBox expects.
func GenerateBoxKey() (string, error) {
	var key [boxKeySize]byte
	if _, err := io.ReadFull(rand.Reader, key[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(key[:]), nil
}
