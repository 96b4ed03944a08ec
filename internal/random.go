package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"

	"github.com/google/uuid"
)

const (
	refreshTokenRawSize = 32

	// RecoveryCodeAlphabet omits characters that are easy to misread (0/O, 1/I).
	RecoveryCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

	recoveryMaskVisible = 2
)

// NewRefreshToken returns a fresh opaque refresh token, base64url without padding.
func NewRefreshToken() (string, error) {
	var raw [refreshTokenRawSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// HashToken returns the hex SHA-256 of an opaque token value.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// NewJTI returns a random token identifier.
func NewJTI() string {
	return uuid.NewString()
}

// NewLoginTxID returns an opaque login transaction id.
func NewLoginTxID() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// NewRecoveryCode draws length characters from RecoveryCodeAlphabet.
func NewRecoveryCode(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("invalid recovery code length")
	}

	max := big.NewInt(int64(len(RecoveryCodeAlphabet)))
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(RecoveryCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// FormatRecoveryCode splits a canonical code into two dash separated halves.
func FormatRecoveryCode(code string) string {
	if len(code) < 2 {
		return code
	}
	half := len(code) / 2
	return code[:half] + "-" + code[half:]
}

// CanonicalizeRecoveryCode upper-cases the input and drops separators.
func CanonicalizeRecoveryCode(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(strings.TrimSpace(code)) {
		if r == '-' || r == ' ' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// RecoveryCodeHash binds the canonical code to its owner so equal codes of
// different users never share a hash.
func RecoveryCodeHash(userID, canonical string) string {
	h := sha256.New()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(canonical))
	return hex.EncodeToString(h.Sum(nil))
}

// MaskRecoveryCode keeps the first and last two characters, e.g. AB****YZ.
func MaskRecoveryCode(code string) string {
	canonical := CanonicalizeRecoveryCode(code)
	if len(canonical) <= 2*recoveryMaskVisible {
		return strings.Repeat("*", 4)
	}
	return canonical[:recoveryMaskVisible] + "****" + canonical[len(canonical)-recoveryMaskVisible:]
}
