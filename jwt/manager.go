package jwt

import (
	"context"
	"crypto"
	"crypto/ed25519"
	"crypto/elliptic"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"
)

// SigningMethod selects the access token algorithm.
type SigningMethod string

const (
	// MethodES256 signs with ECDSA P-256 (default).
	MethodES256 SigningMethod = "es256"
	// MethodEd25519 signs with EdDSA over Ed25519.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with a shared HMAC secret. JWKS publishes no key.
	MethodHS256 SigningMethod = "hs256"
)

const (
	defaultKeyID          = "main"
	defaultPrivateKeyName = "ec-private-key"
	minHMACSecretBytes    = 32
)

var (
	// ErrKeyUnavailable is returned when key material cannot be loaded from the source.
	ErrKeyUnavailable = errors.New("signing key unavailable")
	// ErrInvalidKey is returned when loaded key material does not match the signing method.
	ErrInvalidKey = errors.New("invalid signing key")
	// ErrTokenExpired aliases the parser's expiry error so callers need not import golang-jwt.
	ErrTokenExpired = gjwt.ErrTokenExpired
)

// KeySource is the read side of a secret store.
type KeySource interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// Config describes how access tokens are signed and validated.
type Config struct {
	AccessTTL      time.Duration
	SigningMethod  SigningMethod
	Issuer         string
	KeyID          string
	PrivateKeyName string
	Leeway         time.Duration
	MaxFutureIAT   time.Duration
	// Now overrides the clock used for stamping and validation. Defaults to time.Now.
	Now func() time.Time
}

// Claims is the access token payload.
type Claims struct {
	UserID   string `json:"id"`
	Username string `json:"username,omitempty"`
	Key      string `json:"key,omitempty"`
	Scope    string `json:"scope,omitempty"`
	gjwt.RegisteredClaims
}

// Manager signs and parses access tokens. Keys are loaded from the source on
// first use and kept until Invalidate is called.
type Manager struct {
	config Config
	source KeySource
	now    func() time.Time

	mu    sync.RWMutex
	keys  *keySet
	group singleflight.Group
}

type keySet struct {
	sign   interface{}
	verify interface{}
	public crypto.PublicKey
}

// NewManager validates cfg. No key material is fetched until the first Sign or Parse.
func NewManager(cfg Config, source KeySource) (*Manager, error) {
	if source == nil {
		return nil, errors.New("jwt key source required")
	}
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.SigningMethod == "" {
		cfg.SigningMethod = MethodES256
	}
	switch cfg.SigningMethod {
	case MethodES256, MethodEd25519, MethodHS256:
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	if cfg.KeyID == "" {
		cfg.KeyID = defaultKeyID
	}
	if cfg.PrivateKeyName == "" {
		cfg.PrivateKeyName = defaultPrivateKeyName
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, source: source, now: now}, nil
}

// AccessTTL returns the configured access token lifetime.
func (m *Manager) AccessTTL() time.Duration {
	return m.config.AccessTTL
}

// Sign stamps iss, iat, nbf and exp on claims and returns the compact token.
func (m *Manager) Sign(ctx context.Context, claims *Claims) (string, error) {
	keys, err := m.loadKeys(ctx)
	if err != nil {
		return "", err
	}

	now := m.now()
	claims.Issuer = m.config.Issuer
	claims.IssuedAt = gjwt.NewNumericDate(now)
	claims.NotBefore = gjwt.NewNumericDate(now)
	claims.ExpiresAt = gjwt.NewNumericDate(now.Add(m.config.AccessTTL))

	token := gjwt.NewWithClaims(m.method(), claims)
	token.Header["kid"] = m.config.KeyID
	return token.SignedString(keys.sign)
}

// Parse verifies signature, algorithm, kid, issuer and time claims.
func (m *Manager) Parse(ctx context.Context, tokenStr string) (*Claims, error) {
	keys, err := m.loadKeys(ctx)
	if err != nil {
		return nil, err
	}

	options := []gjwt.ParserOption{
		gjwt.WithValidMethods([]string{m.method().Alg()}),
		gjwt.WithIssuedAt(),
		gjwt.WithExpirationRequired(),
		gjwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, gjwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, gjwt.WithIssuer(m.config.Issuer))
	}

	token, err := gjwt.NewParser(options...).ParseWithClaims(tokenStr, &Claims{}, func(t *gjwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != m.config.KeyID {
			return nil, errors.New("unknown kid")
		}
		return keys.verify, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, gjwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.now().Add(m.config.MaxFutureIAT)) {
		return nil, errors.New("token iat too far in the future")
	}
	return claims, nil
}

// Invalidate drops cached key material so the next call reloads it.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	m.keys = nil
	m.mu.Unlock()
	m.group.Forget("keys")
}

func (m *Manager) loadKeys(ctx context.Context) (*keySet, error) {
	m.mu.RLock()
	keys := m.keys
	m.mu.RUnlock()
	if keys != nil {
		return keys, nil
	}

	v, err, _ := m.group.Do("keys", func() (interface{}, error) {
		m.mu.RLock()
		cached := m.keys
		m.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		raw, err := m.source.GetSecret(context.WithoutCancel(ctx), m.config.PrivateKeyName)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyUnavailable, err)
		}
		loaded, err := m.parseKeys([]byte(raw))
		if err != nil {
			return nil, err
		}
		m.mu.Lock()
		m.keys = loaded
		m.mu.Unlock()
		return loaded, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*keySet), nil
}

func (m *Manager) parseKeys(raw []byte) (*keySet, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		if len(raw) < minHMACSecretBytes {
			return nil, fmt.Errorf("%w: hs256 secret must be at least %d bytes", ErrInvalidKey, minHMACSecretBytes)
		}
		return &keySet{sign: raw, verify: raw}, nil
	case MethodEd25519:
		priv, err := parseEdPrivateKey(raw)
		if err != nil {
			return nil, err
		}
		pub := priv.Public().(ed25519.PublicKey)
		return &keySet{sign: priv, verify: pub, public: pub}, nil
	default:
		priv, err := gjwt.ParseECPrivateKeyFromPEM(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
		}
		if priv.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: es256 requires a P-256 key", ErrInvalidKey)
		}
		return &keySet{sign: priv, verify: &priv.PublicKey, public: &priv.PublicKey}, nil
	}
}

func (m *Manager) method() gjwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return gjwt.SigningMethodHS256
	case MethodEd25519:
		return gjwt.SigningMethodEdDSA
	default:
		return gjwt.SigningMethodES256
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := gjwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, fmt.Errorf("%w: ed25519 private key", ErrInvalidKey)
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: ed25519 private key type", ErrInvalidKey)
	}
	return edKey, nil
}

