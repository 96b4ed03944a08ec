package authkit

import (
	"context"
	"time"

	"github.com/MrEthical07/authkit/jwt"
)

// UserRepository is the read side of the user store. Both lookups return
// nil, nil when the user does not exist.
type UserRepository interface {
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
}

// RefreshTokenRepository persists refresh token records. Implementations must
// make MarkUsed and Revoke atomic per record.
type RefreshTokenRepository interface {
	Save(ctx context.Context, rec *RefreshTokenRecord) error
	// FindByTokenHash returns the non-revoked record of userID with the given
	// hash, or nil, nil.
	FindByTokenHash(ctx context.Context, userID, tokenHash string) (*RefreshTokenRecord, error)
	// MarkUsed flips used from false to true. It reports false when the record
	// was already used or does not exist.
	MarkUsed(ctx context.Context, jti string) (bool, error)
	MarkRotated(ctx context.Context, jti string, at time.Time) error
	// Revoke is idempotent. A revoked record never matches FindByTokenHash again.
	Revoke(ctx context.Context, jti string) error
	RevokeByUserID(ctx context.Context, userID string) (int64, error)
	FindByJTI(ctx context.Context, jti string) (*RefreshTokenRecord, error)
	// FindByParentJTI returns the records rotated from parentJTI, oldest first.
	FindByParentJTI(ctx context.Context, parentJTI string) ([]*RefreshTokenRecord, error)
}

// MFAFactorRepository persists MFA factors.
type MFAFactorRepository interface {
	CreatePending(ctx context.Context, userID string, factorType FactorType, secret string) (*MFAFactor, error)
	// GetPending returns the newest pending factor of the type, or nil, nil.
	GetPending(ctx context.Context, userID string, factorType FactorType) (*MFAFactor, error)
	// ActivateFactor moves a pending factor to active and revokes any other
	// active factor of the same type for that user. It reports false when the
	// factor was no longer pending.
	ActivateFactor(ctx context.Context, factorID string) (bool, error)
	GetActive(ctx context.Context, userID string, factorType FactorType) (*MFAFactor, error)
	ListByUser(ctx context.Context, userID string) ([]*MFAFactor, error)
	RevokeFactor(ctx context.Context, factorID string) error
	// AdvanceStep stores step as the last accepted TOTP step only if it is
	// greater than the stored one.
	AdvanceStep(ctx context.Context, factorID string, step int64) (bool, error)
}

// RecoveryCodeRepository persists hashed recovery codes.
type RecoveryCodeRepository interface {
	// ReplaceCodes deletes every code of the user and stores the new hashes.
	ReplaceCodes(ctx context.Context, userID string, hashes []string) error
	ListUnused(ctx context.Context, userID string) ([]*RecoveryCode, error)
	// MarkUsed flips used from false to true and reports whether this call did it.
	MarkUsed(ctx context.Context, codeID string) (bool, error)
}

// LoginTxStore maps short-lived login transaction ids to user ids.
type LoginTxStore interface {
	Put(ctx context.Context, loginTx, userID string, ttl time.Duration) error
	// Resolve returns ErrLoginTxNotFound for unknown, consumed or expired ids.
	Resolve(ctx context.Context, loginTx string) (string, error)
	// Consume deletes the transaction and reports whether it was still live.
	Consume(ctx context.Context, loginTx string) (bool, error)
}

// PasswordHasher hashes and verifies primary credentials.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
}

// TokenSigner signs and verifies access tokens. *jwt.Manager implements it.
type TokenSigner interface {
	Sign(ctx context.Context, claims *jwt.Claims) (string, error)
	Parse(ctx context.Context, token string) (*jwt.Claims, error)
}

// FactorSecretSealer protects MFA secrets at rest. *secrets.Box implements it.
type FactorSecretSealer interface {
	Seal(plain string) (string, error)
	Open(sealed string) (string, error)
}

type plainSealer struct{}

func (plainSealer) Seal(plain string) (string, error)  { return plain, nil }
func (plainSealer) Open(sealed string) (string, error) { return sealed, nil }
