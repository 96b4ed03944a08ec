package authkit

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// dummyPassword is hashed once at build time. Unknown usernames are verified
// against that hash so both failure paths pay for one Argon2id derivation.
const dummyPassword = "authkit-timing-equalizer-0000000"

// Authenticate verifies a username/password pair. An unknown username and a
// wrong password both fail with ErrInvalidCredentials.
func (e *Engine) Authenticate(ctx context.Context, username, password string) (*UserIdentity, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		e.burnVerify(password)
		return nil, ErrInvalidCredentials
	}

	user, err := e.users.GetUserByUsername(ctx, username)
	if err != nil {
		e.log.Error("user lookup failed", zap.String("op", "authenticate"), zap.Error(err))
		return nil, persistenceError(err)
	}
	if user == nil {
		e.burnVerify(password)
		return nil, ErrInvalidCredentials
	}

	ok, err := e.hasher.Verify(password, user.PasswordHash)
	if err != nil {
		// A malformed stored hash must not be distinguishable from a wrong password.
		e.log.Warn("password verification error", zap.String("user_id", user.ID), zap.Error(err))
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	return &UserIdentity{
		ID:       user.ID,
		Username: user.Username,
		Key:      user.Key,
	}, nil
}

func (e *Engine) burnVerify(password string) {
	_, _ = e.hasher.Verify(password, e.dummyHash)
}
