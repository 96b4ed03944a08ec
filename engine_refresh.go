package authkit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/MrEthical07/authkit/internal"
	"go.uber.org/zap"
)

// maxChainLength bounds TokenChain against corrupted parent links.
const maxChainLength = 10000

// Rotate redeems a refresh token of userID and returns a new session whose
// refresh record is linked to the redeemed one.
//
// A token that was already redeemed, or that loses a concurrent redemption
// race, revokes every refresh token of the user and fails with
// ErrReuseDetected. If that revocation itself fails the error matches both
// ErrReuseDetected and ErrPersistence.
func (e *Engine) Rotate(ctx context.Context, userID, presented string, opts ...IssueOption) (*IssuedSession, error) {
	userID = strings.TrimSpace(userID)
	presented = strings.TrimSpace(presented)
	if userID == "" || presented == "" {
		return nil, e.refreshFailed(ctx, userID, "", ErrInvalidToken)
	}

	rec, err := e.refresh.FindByTokenHash(ctx, userID, internal.HashToken(presented))
	if err != nil {
		e.log.Error("refresh lookup failed", zap.String("user_id", userID), zap.Error(err))
		return nil, e.refreshFailed(ctx, userID, "", persistenceError(err))
	}
	if rec == nil || rec.Revoked || rec.UserID != userID {
		return nil, e.refreshFailed(ctx, userID, "", ErrInvalidToken)
	}
	if rec.Expired(e.now()) {
		return nil, e.refreshFailed(ctx, userID, rec.JTI, ErrTokenExpired)
	}
	if rec.Used {
		return nil, e.reuseDetected(ctx, rec)
	}

	won, err := e.refresh.MarkUsed(ctx, rec.JTI)
	if err != nil {
		e.log.Error("refresh mark used failed", zap.String("jti", rec.JTI), zap.Error(err))
		return nil, e.refreshFailed(ctx, userID, rec.JTI, persistenceError(err))
	}
	if !won {
		return nil, e.reuseDetected(ctx, rec)
	}

	// From here on the presented token is spent even if issuance fails.
	identity, err := e.identityByID(ctx, userID)
	if err != nil {
		return nil, e.refreshFailed(ctx, userID, rec.JTI, err)
	}

	sess, childJTI, err := e.issue(ctx, *identity, rec.JTI, opts)
	if err != nil {
		return nil, e.refreshFailed(ctx, userID, rec.JTI, err)
	}

	if err := e.refresh.MarkRotated(ctx, rec.JTI, e.now()); err != nil {
		// used=true already blocks the parent; the rotated flag is bookkeeping.
		e.log.Warn("refresh mark rotated failed",
			zap.String("jti", rec.JTI),
			zap.String("child_jti", childJTI),
			zap.Error(err),
		)
	}

	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, userID, childJTI, nil, func() map[string]string {
		return map[string]string{"parent_jti": rec.JTI}
	})
	return sess, nil
}

func (e *Engine) refreshFailed(ctx context.Context, userID, jti string, err error) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshInvalid, false, userID, jti, err, nil)
	return err
}

func (e *Engine) reuseDetected(ctx context.Context, rec *RefreshTokenRecord) error {
	e.metricInc(MetricRefreshReuseDetected)

	revoked, err := e.refresh.RevokeByUserID(ctx, rec.UserID)
	if err != nil {
		e.log.Error("reuse cascade revocation failed",
			zap.String("user_id", rec.UserID),
			zap.String("jti", rec.JTI),
			zap.Error(err),
		)
		err = fmt.Errorf("%w: %w", ErrReuseDetected, persistenceError(err))
		e.emitAudit(ctx, auditEventRefreshReuseDetected, false, rec.UserID, rec.JTI, err, nil)
		return err
	}

	e.log.Warn("refresh token reuse detected",
		zap.String("user_id", rec.UserID),
		zap.String("jti", rec.JTI),
		zap.Int64("revoked", revoked),
	)
	e.emitAudit(ctx, auditEventRefreshReuseDetected, false, rec.UserID, rec.JTI, ErrReuseDetected, func() map[string]string {
		return map[string]string{"revoked": fmt.Sprint(revoked)}
	})
	return ErrReuseDetected
}

// TokenChain walks the family starting at rootJTI and returns its records in
// rotation order. The last element is the live head unless the family was
// revoked or redeemed twice.
func (e *Engine) TokenChain(ctx context.Context, rootJTI string) ([]*RefreshTokenRecord, error) {
	if strings.TrimSpace(rootJTI) == "" {
		return nil, ErrInvalidToken
	}

	root, err := e.refresh.FindByJTI(ctx, rootJTI)
	if err != nil {
		return nil, persistenceError(err)
	}
	if root == nil {
		return nil, ErrInvalidToken
	}

	chain := []*RefreshTokenRecord{root}
	seen := map[string]struct{}{root.JTI: {}}
	for current := root; len(chain) < maxChainLength; {
		children, err := e.refresh.FindByParentJTI(ctx, current.JTI)
		if err != nil {
			return nil, persistenceError(err)
		}
		if len(children) == 0 {
			break
		}
		next := children[0]
		if _, dup := seen[next.JTI]; dup {
			return nil, errors.New("refresh token chain contains a cycle")
		}
		seen[next.JTI] = struct{}{}
		chain = append(chain, next)
		current = next
	}
	return chain, nil
}
