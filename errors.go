package authkit

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for an unknown username and for a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrTokenExpired is returned when a refresh or access token is past its expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrInvalidToken is returned when a presented token does not verify or does not exist.
	ErrInvalidToken = errors.New("invalid token")
	// ErrReuseDetected is returned after a redeemed refresh token was presented again.
	// Every refresh token of the user has been revoked by the time it is returned.
	ErrReuseDetected = errors.New("refresh token reuse detected")
	// ErrNoPendingSetup is returned by ActivateTOTP when no pending enrollment exists.
	ErrNoPendingSetup = errors.New("no pending mfa setup")
	// ErrInvalidCode is returned for a wrong, malformed or replayed TOTP code.
	ErrInvalidCode = errors.New("invalid mfa code")
	// ErrNoActiveFactor is returned when verification needs an active factor and none exists.
	ErrNoActiveFactor = errors.New("no active mfa factor")
	// ErrInvalidRecoveryCode is returned when no unused recovery code matches.
	ErrInvalidRecoveryCode = errors.New("invalid recovery code")
	// ErrPersistence wraps storage failures. The wrapped detail is for logs only.
	ErrPersistence = errors.New("persistence failure")
	// ErrUserNotFound is returned when an operation addresses a user id that does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrLoginTxNotFound is returned for unknown, consumed or expired login transactions.
	ErrLoginTxNotFound = fmt.Errorf("%w: login transaction not found", ErrInvalidToken)
	// ErrInvalidPayload is returned when a verified access token lacks id, username or key.
	ErrInvalidPayload = errors.New("invalid token payload")
	// ErrTokenSigning wraps signer and key-store failures.
	ErrTokenSigning = errors.New("token signing failed")
	// ErrFactorNotFound is returned when a factor id does not belong to the user.
	ErrFactorNotFound = errors.New("mfa factor not found")
	// ErrUnsupportedFactor is returned for factor types without defined behavior (webauthn).
	ErrUnsupportedFactor = errors.New("unsupported mfa factor")
	// ErrEngineNotReady is returned when a required collaborator was not configured.
	ErrEngineNotReady = errors.New("engine not initialized")
)

func persistenceError(err error) error {
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
