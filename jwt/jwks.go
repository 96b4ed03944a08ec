package jwt

import (
	"context"
	"crypto/ecdsa"
	"crypto/ed25519"
	"encoding/base64"
)

// JWK is a public verification key in RFC 7517 form.
type JWK struct {
	Kty string `json:"kty"`
	Crv string `json:"crv,omitempty"`
	X   string `json:"x,omitempty"`
	Y   string `json:"y,omitempty"`
	Alg string `json:"alg"`
	Use string `json:"use"`
	Kid string `json:"kid"`
}

// JWKSet is the document served at /.well-known/jwks.json.
type JWKSet struct {
	Keys []JWK `json:"keys"`
}

// JWKS returns the public key set for the active signing key. Symmetric
// methods have nothing to publish and return an empty set.
func (m *Manager) JWKS(ctx context.Context) (*JWKSet, error) {
	keys, err := m.loadKeys(ctx)
	if err != nil {
		return nil, err
	}

	set := &JWKSet{Keys: []JWK{}}
	enc := base64.RawURLEncoding

	switch pub := keys.public.(type) {
	case *ecdsa.PublicKey:
		size := (pub.Curve.Params().BitSize + 7) / 8
		set.Keys = append(set.Keys, JWK{
			Kty: "EC",
			Crv: pub.Curve.Params().Name,
			X:   enc.EncodeToString(pub.X.FillBytes(make([]byte, size))),
			Y:   enc.EncodeToString(pub.Y.FillBytes(make([]byte, size))),
			Alg: m.method().Alg(),
			Use: "sig",
			Kid: m.config.KeyID,
		})
	case ed25519.PublicKey:
		set.Keys = append(set.Keys, JWK{
			Kty: "OKP",
			Crv: "Ed25519",
			X:   enc.EncodeToString(pub),
			Alg: m.method().Alg(),
			Use: "sig",
			Kid: m.config.KeyID,
		})
	}
	return set, nil
}
