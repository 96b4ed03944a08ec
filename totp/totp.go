package totp

import (
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/hotp"
	pqtotp "github.com/pquerna/otp/totp"
)

const (
	defaultPeriod     = 30
	defaultSkew       = 1
	defaultSecretSize = 20
)

// ErrEmptySecret is returned when validating against an empty shared secret.
var ErrEmptySecret = errors.New("empty totp secret")

// Config controls code shape and the accepted clock drift in steps.
type Config struct {
	Period     uint
	Skew       uint
	Digits     otp.Digits
	Algorithm  otp.Algorithm
	SecretSize uint
}

// DefaultConfig is the authenticator-app compatible profile: SHA1, 6 digits, 30s, ±1 step.
func DefaultConfig() Config {
	return Config{
		Period:     defaultPeriod,
		Skew:       defaultSkew,
		Digits:     otp.DigitsSix,
		Algorithm:  otp.AlgorithmSHA1,
		SecretSize: defaultSecretSize,
	}
}

// Enrollment is a freshly generated shared secret and its provisioning URL.
type Enrollment struct {
	Secret string
	URL    string
}

// Manager generates secrets and validates codes.
type Manager struct {
	cfg Config
}

// NewManager fills zero fields of cfg from DefaultConfig.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.Period == 0 {
		cfg.Period = def.Period
	}
	if cfg.Digits == 0 {
		cfg.Digits = def.Digits
	}
	if cfg.SecretSize == 0 {
		cfg.SecretSize = def.SecretSize
	}
	return &Manager{cfg: cfg}
}

// Enroll creates a random base32 secret (no padding) and the otpauth:// URL
// labelled issuer:account.
func (m *Manager) Enroll(issuer, account string) (*Enrollment, error) {
	key, err := pqtotp.Generate(pqtotp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Period:      m.cfg.Period,
		SecretSize:  m.cfg.SecretSize,
		Digits:      m.cfg.Digits,
		Algorithm:   m.cfg.Algorithm,
	})
	if err != nil {
		return nil, err
	}
	return &Enrollment{Secret: key.Secret(), URL: key.URL()}, nil
}

// Code returns the code for secret at t.
func (m *Manager) Code(secret string, t time.Time) (string, error) {
	return pqtotp.GenerateCodeCustom(secret, t, pqtotp.ValidateOpts{
		Period:    m.cfg.Period,
		Digits:    m.cfg.Digits,
		Algorithm: m.cfg.Algorithm,
	})
}

// Validate checks code against every step in [now-skew, now+skew] and
// returns the matched step counter. A non-matching code is (0, false, nil).
func (m *Manager) Validate(secret, code string, now time.Time) (int64, bool, error) {
	if secret == "" {
		return 0, false, ErrEmptySecret
	}
	code = strings.TrimSpace(code)
	if len(code) != m.cfg.Digits.Length() || !isNumeric(code) {
		return 0, false, nil
	}

	opts := hotp.ValidateOpts{Digits: m.cfg.Digits, Algorithm: m.cfg.Algorithm}
	base := now.Unix() / int64(m.cfg.Period)
	skew := int64(m.cfg.Skew)

	var (
		matched int64
		ok      bool
	)
	// every candidate is computed so timing does not reveal the matching offset
	for step := base - skew; step <= base+skew; step++ {
		if step < 0 {
			continue
		}
		want, err := hotp.GenerateCodeCustom(secret, uint64(step), opts)
		if err != nil {
			return 0, false, err
		}
		if subtle.ConstantTimeCompare([]byte(want), []byte(code)) == 1 && !ok {
			matched, ok = step, true
		}
	}
	return matched, ok, nil
}

// Step returns the step counter containing t.
func (m *Manager) Step(t time.Time) int64 {
	return t.Unix() / int64(m.cfg.Period)
}

// Period returns the configured step length.
func (m *Manager) Period() time.Duration {
	return time.Duration(m.cfg.Period) * time.Second
}

func isNumeric(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
