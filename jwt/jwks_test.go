package jwt

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"math/big"
	"testing"
	"time"
)

func TestJWKSPublishesECKey(t *testing.T) {
	m, priv, _ := newESManager(t)

	set, err := m.JWKS(context.Background())
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	if len(set.Keys) != 1 {
		t.Fatalf("expected one key, got %d", len(set.Keys))
	}
	k := set.Keys[0]
	if k.Kty != "EC" || k.Crv != "P-256" || k.Alg != "ES256" || k.Use != "sig" || k.Kid != "main" {
		t.Fatalf("unexpected jwk header fields: %+v", k)
	}

	x, err := base64.RawURLEncoding.DecodeString(k.X)
	if err != nil || len(x) != 32 {
		t.Fatalf("invalid x coordinate: %v len=%d", err, len(x))
	}
	if new(big.Int).SetBytes(x).Cmp(priv.PublicKey.X) != 0 {
		t.Fatal("x coordinate does not match public key")
	}
}

func TestJWKSEd25519AndHS256(t *testing.T) {
	edPriv, edPEM := newEdPEM(t)
	src := &mapSource{values: map[string]string{
		"ed":   edPEM,
		"hmac": "0123456789abcdef0123456789abcdef",
	}}

	ed, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKeyName: "ed"}, src)
	set, err := ed.JWKS(context.Background())
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	if len(set.Keys) != 1 || set.Keys[0].Kty != "OKP" || set.Keys[0].Alg != "EdDSA" {
		t.Fatalf("unexpected ed25519 jwks: %+v", set)
	}
	x, _ := base64.RawURLEncoding.DecodeString(set.Keys[0].X)
	if string(x) != string(edPriv.Public().(ed25519.PublicKey)) {
		t.Fatal("published key does not match")
	}

	hs, _ := NewManager(Config{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKeyName: "hmac"}, src)
	set, err = hs.JWKS(context.Background())
	if err != nil {
		t.Fatalf("jwks: %v", err)
	}
	if len(set.Keys) != 0 {
		t.Fatalf("expected empty set for hs256, got %+v", set)
	}
}
