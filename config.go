package authkit

import (
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/authkit/jwt"
	"github.com/MrEthical07/authkit/password"
)

// Config is the complete engine configuration. Treat it as immutable once
// handed to the Builder.
type Config struct {
	Token    TokenConfig
	Refresh  RefreshConfig
	MFA      MFAConfig
	Recovery RecoveryConfig
	LoginTx  LoginTxConfig
	Password PasswordConfig
	Audit    AuditConfig
	Metrics  MetricsConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls access token signing.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod jwt.SigningMethod
	Issuer        string
	KeyID         string
	// PrivateKeyName is the secret name the signing key is loaded from.
	PrivateKeyName  string
	Leeway          time.Duration
	DefaultAudience string
	DefaultScope    string
}

/*
====================================
REFRESH CONFIG
====================================
*/

// RefreshConfig controls refresh token lifetime.
type RefreshConfig struct {
	TTL time.Duration
}

/*
====================================
MFA CONFIG
====================================
*/

// MFAConfig controls TOTP code shape and clock drift tolerance.
type MFAConfig struct {
	Period     uint
	Skew       uint
	Digits     int
	SecretSize uint
}

// RecoveryConfig controls how many recovery codes are generated and their length.
type RecoveryConfig struct {
	Count      int
	CodeLength int
}

// LoginTxConfig controls the lifetime of the MFA login handshake.
type LoginTxConfig struct {
	TTL time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters. Memory is in KiB.
type PasswordConfig struct {
	Memory           uint32
	Time             uint32
	Parallelism      uint8
	SaltLength       uint32
	KeyLength        uint32
	MinPasswordBytes int
}

/*
====================================
AUDIT / METRICS CONFIG
====================================
*/

// AuditConfig controls the asynchronous audit queue. With DropIfFull, routine
// events are dropped when the buffer is full; credential changes and reuse
// detection still wait.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// DefaultConfig returns production defaults: ES256 access tokens valid for
// 15 minutes, refresh tokens valid for 7 days, TOTP SHA1/6/30s with one step
// of skew, eight recovery codes and a five minute login transaction.
func DefaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Token: TokenConfig{
			AccessTTL:      15 * time.Minute,
			SigningMethod:  jwt.MethodES256,
			Issuer:         "authkit",
			KeyID:          "main",
			PrivateKeyName: "ec-private-key",
			Leeway:         30 * time.Second,
		},
		Refresh: RefreshConfig{
			TTL: 7 * 24 * time.Hour,
		},
		MFA: MFAConfig{
			Period:     30,
			Skew:       1,
			Digits:     6,
			SecretSize: 20,
		},
		Recovery: RecoveryConfig{
			Count:      8,
			CodeLength: 10,
		},
		LoginTx: LoginTxConfig{
			TTL: 5 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:           pw.Memory,
			Time:             pw.Time,
			Parallelism:      pw.Parallelism,
			SaltLength:       pw.SaltLength,
			KeyLength:        pw.KeyLength,
			MinPasswordBytes: pw.MinPasswordBytes,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

// Validate rejects configurations the engine cannot run safely with.
func (c *Config) Validate() error {
	// Token
	if c.Token.AccessTTL <= 0 {
		return errors.New("Token AccessTTL must be > 0")
	}
	if c.Token.AccessTTL > 24*time.Hour {
		return errors.New("Token AccessTTL must be <= 24h")
	}
	switch c.Token.SigningMethod {
	case jwt.MethodES256, jwt.MethodEd25519, jwt.MethodHS256:
	default:
		return fmt.Errorf("unsupported Token SigningMethod %q", c.Token.SigningMethod)
	}
	if c.Token.PrivateKeyName == "" {
		return errors.New("Token PrivateKeyName must be set")
	}
	if c.Token.Leeway < 0 || c.Token.Leeway > 2*time.Minute {
		return errors.New("Token Leeway must be within [0, 2m]")
	}

	// Refresh
	if c.Refresh.TTL <= 0 {
		return errors.New("Refresh TTL must be > 0")
	}
	if c.Refresh.TTL <= c.Token.AccessTTL {
		return errors.New("Refresh TTL must exceed Token AccessTTL")
	}

	// MFA
	if c.MFA.Period < 15 || c.MFA.Period > 120 {
		return errors.New("MFA Period must be within [15, 120] seconds")
	}
	if c.MFA.Skew > 3 {
		return errors.New("MFA Skew must be <= 3")
	}
	if c.MFA.Digits != 6 && c.MFA.Digits != 8 {
		return errors.New("MFA Digits must be 6 or 8")
	}
	if c.MFA.SecretSize < 16 {
		return errors.New("MFA SecretSize must be >= 16")
	}

	// Recovery
	if c.Recovery.Count < 1 || c.Recovery.Count > 32 {
		return errors.New("Recovery Count must be within [1, 32]")
	}
	if c.Recovery.CodeLength < 8 {
		return errors.New("Recovery CodeLength must be >= 8")
	}

	// Login transaction
	if c.LoginTx.TTL <= 0 {
		return errors.New("LoginTx TTL must be > 0")
	}
	if c.LoginTx.TTL > 30*time.Minute {
		return errors.New("LoginTx TTL must be <= 30m")
	}

	// Password
	if _, err := password.NewArgon2(c.HasherConfig()); err != nil {
		return fmt.Errorf("Password: %w", err)
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}

// HasherConfig returns the Argon2id parameters the engine hashes with.
func (c *Config) HasherConfig() password.Config {
	return password.Config{
		Memory:           c.Password.Memory,
		Time:             c.Password.Time,
		Parallelism:      c.Password.Parallelism,
		SaltLength:       c.Password.SaltLength,
		KeyLength:        c.Password.KeyLength,
		MinPasswordBytes: c.Password.MinPasswordBytes,
	}
}

func (c *Config) jwtConfig() jwt.Config {
	return jwt.Config{
		AccessTTL:      c.Token.AccessTTL,
		SigningMethod:  c.Token.SigningMethod,
		Issuer:         c.Token.Issuer,
		KeyID:          c.Token.KeyID,
		PrivateKeyName: c.Token.PrivateKeyName,
		Leeway:         c.Token.Leeway,
	}
}
