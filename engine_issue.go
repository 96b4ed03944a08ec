package authkit

import (
	"context"
	"fmt"
	"strings"

	"github.com/MrEthical07/authkit/internal"
	"github.com/MrEthical07/authkit/jwt"
	gjwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const tokenTypeBearer = "Bearer"

// Issue mints an access token and a new root refresh token for a verified
// identity. The refresh record is persisted before anything is returned; on a
// storage failure no session is returned.
func (e *Engine) Issue(ctx context.Context, identity UserIdentity, opts ...IssueOption) (*IssuedSession, error) {
	sess, jti, err := e.issue(ctx, identity, "", opts)
	if err != nil {
		e.emitAudit(ctx, auditEventTokenIssued, false, identity.ID, "", err, nil)
		return nil, err
	}
	e.metricInc(MetricTokenIssued)
	e.emitAudit(ctx, auditEventTokenIssued, true, identity.ID, jti, nil, nil)
	return sess, nil
}

// IssueForUserID loads the user and issues a session for it. It is the
// issuance step of the MFA login and of administrative tooling.
func (e *Engine) IssueForUserID(ctx context.Context, userID string, opts ...IssueOption) (*IssuedSession, error) {
	identity, err := e.identityByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return e.Issue(ctx, *identity, opts...)
}

func (e *Engine) identityByID(ctx context.Context, userID string) (*UserIdentity, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserNotFound
	}
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		e.log.Error("user lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil, persistenceError(err)
	}
	if user == nil {
		return nil, ErrUserNotFound
	}
	return &UserIdentity{ID: user.ID, Username: user.Username, Key: user.Key}, nil
}

func (e *Engine) issueParams(opts []IssueOption) issueParams {
	p := issueParams{
		audience: e.config.Token.DefaultAudience,
		scope:    e.config.Token.DefaultScope,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&p)
		}
	}
	return p
}

// issue signs the access token, then persists the refresh record linked to
// parentJTI ("" for a root record). It returns the new record's jti.
func (e *Engine) issue(ctx context.Context, identity UserIdentity, parentJTI string, opts []IssueOption) (*IssuedSession, string, error) {
	if identity.ID == "" {
		return nil, "", ErrUserNotFound
	}
	params := e.issueParams(opts)

	claims := &jwt.Claims{
		UserID:   identity.ID,
		Username: identity.Username,
		Key:      identity.Key,
		Scope:    params.scope,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject: identity.ID,
			ID:      internal.NewJTI(),
		},
	}
	if params.audience != "" {
		claims.Audience = gjwt.ClaimStrings{params.audience}
	}

	access, err := e.signer.Sign(ctx, claims)
	if err != nil {
		e.log.Error("access token signing failed", zap.String("user_id", identity.ID), zap.Error(err))
		return nil, "", fmt.Errorf("%w: %v", ErrTokenSigning, err)
	}

	raw, err := internal.NewRefreshToken()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrTokenSigning, err)
	}

	now := e.now()
	rec := &RefreshTokenRecord{
		JTI:       internal.NewJTI(),
		UserID:    identity.ID,
		TokenHash: internal.HashToken(raw),
		ParentJTI: parentJTI,
		ExpiresAt: now.Add(e.config.Refresh.TTL),
		Meta:      requestMeta(ctx),
		CreatedAt: now,
	}
	if err := e.refresh.Save(ctx, rec); err != nil {
		e.log.Error("refresh token save failed",
			zap.String("user_id", identity.ID),
			zap.String("jti", rec.JTI),
			zap.Error(err),
		)
		return nil, "", persistenceError(err)
	}

	return &IssuedSession{
		AccessToken:     access,
		RefreshToken:    raw,
		UserID:          identity.ID,
		TokenType:       tokenTypeBearer,
		ExpiresIn:       int64(e.config.Refresh.TTL.Seconds()),
		AccessExpiresIn: int64(e.config.Token.AccessTTL.Seconds()),
		Scope:           params.scope,
		Audience:        params.audience,
	}, rec.JTI, nil
}
