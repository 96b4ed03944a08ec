package authkit

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/authkit/jwt"
)

// ParsePayload verifies an access token and returns the identity it carries.
// Tokens missing id, username or key fail with ErrInvalidPayload.
func (e *Engine) ParsePayload(ctx context.Context, accessToken string) (*Payload, error) {
	accessToken = strings.TrimSpace(accessToken)
	if accessToken == "" {
		return nil, ErrInvalidToken
	}

	claims, err := e.signer.Parse(ctx, accessToken)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrKeyUnavailable), errors.Is(err, jwt.ErrInvalidKey):
			return nil, ErrTokenSigning
		default:
			return nil, ErrInvalidToken
		}
	}
	if claims == nil {
		return nil, ErrInvalidToken
	}

	p := &Payload{ID: claims.UserID, Username: claims.Username, Key: claims.Key}
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Username) == "" || strings.TrimSpace(p.Key) == "" {
		return nil, ErrInvalidPayload
	}
	return p, nil
}
