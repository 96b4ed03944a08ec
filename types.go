package authkit

import "time"

// User is owned by the user store. The engine only reads it.
type User struct {
	ID           string
	Username     string
	PasswordHash string
	// Key is an opaque per-user value embedded in access tokens.
	Key       string
	CreatedAt time.Time
}

// UserIdentity is the minimal verified identity handed to token issuance.
type UserIdentity struct {
	ID       string
	Username string
	Key      string
}

// RefreshTokenRecord is the persisted state of one refresh token. Records
// linked through ParentJTI form a family; a root record has an empty ParentJTI.
type RefreshTokenRecord struct {
	JTI       string
	UserID    string
	TokenHash string
	ParentJTI string
	ExpiresAt time.Time
	Used      bool
	Rotated   bool
	RotatedAt time.Time
	// Revoked is set by stores that soft-delete. Revoked records never verify.
	Revoked   bool
	Meta      map[string]string
	CreatedAt time.Time
}

// IsRoot reports whether the record was created by a login rather than a rotation.
func (r *RefreshTokenRecord) IsRoot() bool {
	return r.ParentJTI == ""
}

// Expired reports whether the record is past its expiry at now.
func (r *RefreshTokenRecord) Expired(now time.Time) bool {
	return !now.Before(r.ExpiresAt)
}

// FactorType identifies an MFA mechanism.
type FactorType string

const (
	FactorTOTP     FactorType = "totp"
	FactorRecovery FactorType = "recovery"
	// FactorWebAuthn is reserved. No operation accepts it.
	FactorWebAuthn FactorType = "webauthn"
)

// FactorStatus is the lifecycle state of an MFA factor.
type FactorStatus string

const (
	FactorPending FactorStatus = "pending"
	FactorActive  FactorStatus = "active"
	FactorRevoked FactorStatus = "revoked"
)

// MFAFactor is an enrolled second factor. Secret is opaque at rest and is
// cleared on values returned from ListFactors.
type MFAFactor struct {
	ID     string
	UserID string
	Type   FactorType
	Secret string
	Status FactorStatus
	// LastUsedStep is the highest TOTP time step accepted for this factor.
	LastUsedStep int64
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// RecoveryCode is a stored one-time backup credential.
type RecoveryCode struct {
	ID        string
	UserID    string
	CodeHash  string
	Used      bool
	CreatedAt time.Time
	UsedAt    time.Time
}

// RecoveryCodeSet is returned once by GenerateRecoveryCodes. Codes are the
// raw values to show the user; Masked is safe to display later.
type RecoveryCodeSet struct {
	Codes  []string
	Masked []string
}

// IssuedSession is the token pair returned by every successful login or rotation.
type IssuedSession struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	UserID       string `json:"userId"`
	TokenType    string `json:"tokenType"`
	// ExpiresIn is the refresh token lifetime in seconds.
	ExpiresIn int64 `json:"expiresIn"`
	// AccessExpiresIn is the access token lifetime in seconds.
	AccessExpiresIn int64  `json:"accessExpiresIn"`
	Scope           string `json:"scope,omitempty"`
	Audience        string `json:"audience,omitempty"`
}

// LoginResult is either an issued session or an MFA challenge.
type LoginResult struct {
	Session     *IssuedSession
	MFARequired bool
	LoginTx     string
	Factors     []FactorType
}

// Authenticated reports whether the login finished without an MFA step.
func (r *LoginResult) Authenticated() bool {
	return r != nil && !r.MFARequired && r.Session != nil
}

// Payload is the identity carried by a verified access token.
type Payload struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Key      string `json:"key"`
}

// IssueOption overrides per-request token parameters.
type IssueOption func(*issueParams)

type issueParams struct {
	audience string
	scope    string
}

// WithAudience sets the aud claim. Empty keeps the configured default.
func WithAudience(aud string) IssueOption {
	return func(p *issueParams) {
		if aud != "" {
			p.audience = aud
		}
	}
}

// WithScope sets the scope claim. Empty keeps the configured default.
func WithScope(scope string) IssueOption {
	return func(p *issueParams) {
		if scope != "" {
			p.scope = scope
		}
	}
}
