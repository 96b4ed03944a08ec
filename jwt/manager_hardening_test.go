package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

type mapSource struct {
	mu     sync.Mutex
	values map[string]string
	calls  atomic.Int32
}

func (s *mapSource) GetSecret(_ context.Context, name string) (string, error) {
	s.calls.Add(1)
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[name]
	if !ok {
		return "", errors.New("missing secret " + name)
	}
	return v, nil
}

func (s *mapSource) set(name, value string) {
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
}

func newECPEM(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ec key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal ec key: %v", err)
	}
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func newEdPEM(t testing.TB) (ed25519.PrivateKey, string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		t.Fatalf("marshal ed25519 key: %v", err)
	}
	return priv, string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}))
}

func newESManager(t *testing.T) (*Manager, *ecdsa.PrivateKey, *mapSource) {
	t.Helper()
	priv, pemKey := newECPEM(t)
	src := &mapSource{values: map[string]string{"ec-private-key": pemKey}}
	m, err := NewManager(Config{AccessTTL: time.Minute, Issuer: "authkit", Leeway: 30 * time.Second}, src)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return m, priv, src
}

func TestSignAndParseES256(t *testing.T) {
	m, _, _ := newESManager(t)

	token, err := m.Sign(context.Background(), &Claims{
		UserID:   "u1",
		Username: "alice",
		Key:      "k-1",
		Scope:    "read",
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:  "u1",
			Audience: gjwt.ClaimStrings{"api"},
			ID:       "jti-1",
		},
	})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	claims, err := m.Parse(context.Background(), token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID != "u1" || claims.Username != "alice" || claims.Key != "k-1" || claims.Scope != "read" {
		t.Fatalf("unexpected custom claims: %+v", claims)
	}
	if claims.Subject != "u1" || claims.Issuer != "authkit" || claims.ID != "jti-1" {
		t.Fatalf("unexpected registered claims: %+v", claims.RegisteredClaims)
	}
	if claims.NotBefore == nil || claims.IssuedAt == nil || claims.ExpiresAt == nil {
		t.Fatal("expected nbf, iat and exp to be stamped")
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	m, _, _ := newESManager(t)

	claims := Claims{UserID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
		Issuer:    "authkit",
		IssuedAt:  gjwt.NewNumericDate(time.Now()),
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	tok.Header["kid"] = "main"
	token, err := tok.SignedString([]byte("secret-secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(context.Background(), token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseIssuerKidAndLeeway(t *testing.T) {
	m, priv, _ := newESManager(t)

	sign := func(c Claims, kid string) string {
		tok := gjwt.NewWithClaims(gjwt.SigningMethodES256, c)
		tok.Header["kid"] = kid
		s, err := tok.SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	base := func(iss string, exp time.Duration) Claims {
		return Claims{UserID: "u1", RegisteredClaims: gjwt.RegisteredClaims{
			Issuer:    iss,
			IssuedAt:  gjwt.NewNumericDate(time.Now().Add(-time.Minute)),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(exp)),
		}}
	}

	if _, err := m.Parse(context.Background(), sign(base("other", time.Minute), "main")); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Parse(context.Background(), sign(base("authkit", time.Minute), "other")); err == nil {
		t.Fatal("expected unknown kid to fail")
	}
	if _, err := m.Parse(context.Background(), sign(base("authkit", -15*time.Second), "main")); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	_, err := m.Parse(context.Background(), sign(base("authkit", -2*time.Minute), "main"))
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestKeysLoadedOnceAndReloadedAfterInvalidate(t *testing.T) {
	m, _, src := newESManager(t)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Sign(context.Background(), &Claims{UserID: "u"}); err != nil {
				t.Errorf("sign: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := src.calls.Load(); got != 1 {
		t.Fatalf("expected one key load, got %d", got)
	}

	old, err := m.Sign(context.Background(), &Claims{UserID: "u"})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, rotated := newECPEM(t)
	src.set("ec-private-key", rotated)
	m.Invalidate()

	if _, err := m.Parse(context.Background(), old); err == nil {
		t.Fatal("expected token signed with rotated-out key to fail")
	}
	if got := src.calls.Load(); got != 2 {
		t.Fatalf("expected key reload after invalidate, got %d loads", got)
	}
}

func TestMissingKeyIsUnavailable(t *testing.T) {
	m, err := NewManager(Config{AccessTTL: time.Minute}, &mapSource{values: map[string]string{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, err := m.Sign(context.Background(), &Claims{UserID: "u"}); !errors.Is(err, ErrKeyUnavailable) {
		t.Fatalf("expected ErrKeyUnavailable, got %v", err)
	}
}

func TestEd25519AndHS256(t *testing.T) {
	_, edPEM := newEdPEM(t)
	src := &mapSource{values: map[string]string{
		"ed-key":   edPEM,
		"hmac-key": "0123456789abcdef0123456789abcdef",
		"short":    "too-short",
	}}

	for _, cfg := range []Config{
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKeyName: "ed-key"},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKeyName: "hmac-key"},
	} {
		m, err := NewManager(cfg, src)
		if err != nil {
			t.Fatalf("new manager %s: %v", cfg.SigningMethod, err)
		}
		token, err := m.Sign(context.Background(), &Claims{UserID: "u1"})
		if err != nil {
			t.Fatalf("sign %s: %v", cfg.SigningMethod, err)
		}
		if _, err := m.Parse(context.Background(), token); err != nil {
			t.Fatalf("parse %s: %v", cfg.SigningMethod, err)
		}
	}

	m, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKeyName: "short"}, src)
	if _, err := m.Sign(context.Background(), &Claims{UserID: "u1"}); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for short hmac secret, got %v", err)
	}
}

func TestNewManagerValidation(t *testing.T) {
	src := &mapSource{values: map[string]string{}}
	if _, err := NewManager(Config{}, src); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, SigningMethod: "rs512"}, src); err == nil {
		t.Fatal("expected unsupported method to be rejected")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute, Leeway: time.Hour}, src); err == nil {
		t.Fatal("expected excessive leeway to be rejected")
	}
	if _, err := NewManager(Config{AccessTTL: time.Minute}, nil); err == nil {
		t.Fatal("expected nil source to be rejected")
	}
}
