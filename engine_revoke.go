package authkit

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// RevokeByJTI invalidates one refresh token. Revoking an unknown or already
// revoked jti succeeds.
func (e *Engine) RevokeByJTI(ctx context.Context, jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return ErrInvalidToken
	}

	if err := e.refresh.Revoke(ctx, jti); err != nil {
		e.log.Error("refresh revoke failed", zap.String("jti", jti), zap.Error(err))
		err = persistenceError(err)
		e.emitAudit(ctx, auditEventRevoke, false, "", jti, err, nil)
		return err
	}

	e.metricInc(MetricRevoke)
	e.emitAudit(ctx, auditEventRevoke, true, "", jti, nil, nil)
	return nil
}

// RevokeByUserID invalidates every refresh token of userID. Access tokens
// already issued stay valid until they expire.
func (e *Engine) RevokeByUserID(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrUserNotFound
	}

	n, err := e.refresh.RevokeByUserID(ctx, userID)
	if err != nil {
		e.log.Error("refresh revoke all failed", zap.String("user_id", userID), zap.Error(err))
		err = persistenceError(err)
		e.emitAudit(ctx, auditEventRevokeAll, false, userID, "", err, nil)
		return err
	}

	e.metricInc(MetricRevokeAll)
	e.emitAudit(ctx, auditEventRevokeAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(n)}
	})
	return nil
}
