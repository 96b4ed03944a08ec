package authkit

import (
	"context"
	"crypto/subtle"
	"strconv"

	"github.com/MrEthical07/authkit/internal"
	"go.uber.org/zap"
)

// GenerateRecoveryCodes replaces the recovery codes of userID with a fresh
// set. The raw codes exist only in the returned value.
func (e *Engine) GenerateRecoveryCodes(ctx context.Context, userID string) (*RecoveryCodeSet, error) {
	if _, err := e.identityByID(ctx, userID); err != nil {
		return nil, err
	}

	count := e.config.Recovery.Count
	set := &RecoveryCodeSet{
		Codes:  make([]string, 0, count),
		Masked: make([]string, 0, count),
	}
	hashes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := internal.NewRecoveryCode(e.config.Recovery.CodeLength)
		if err != nil {
			return nil, err
		}
		set.Codes = append(set.Codes, internal.FormatRecoveryCode(code))
		set.Masked = append(set.Masked, internal.MaskRecoveryCode(code))
		hashes = append(hashes, internal.RecoveryCodeHash(userID, code))
	}

	if err := e.recovery.ReplaceCodes(ctx, userID, hashes); err != nil {
		e.log.Error("recovery code store failed", zap.String("user_id", userID), zap.Error(err))
		return nil, persistenceError(err)
	}

	e.metricInc(MetricRecoveryCodesGenerated)
	e.emitAudit(ctx, auditEventRecoveryGenerated, true, userID, "", nil, nil)
	return set, nil
}

// VerifyRecoveryCode redeems one unused recovery code of userID. Every stored
// hash is compared so timing does not depend on the matching position. Of
// concurrent redemptions of one code exactly one succeeds.
func (e *Engine) VerifyRecoveryCode(ctx context.Context, userID, code string) error {
	canonical := internal.CanonicalizeRecoveryCode(code)
	if userID == "" || canonical == "" {
		return e.recoveryFailed(ctx, userID, ErrInvalidRecoveryCode)
	}

	codes, err := e.recovery.ListUnused(ctx, userID)
	if err != nil {
		e.log.Error("recovery code lookup failed", zap.String("user_id", userID), zap.Error(err))
		return e.recoveryFailed(ctx, userID, persistenceError(err))
	}

	want := []byte(internal.RecoveryCodeHash(userID, canonical))
	var match *RecoveryCode
	for _, c := range codes {
		if c == nil || c.Used {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(c.CodeHash), want) == 1 && match == nil {
			match = c
		}
	}
	if match == nil {
		return e.recoveryFailed(ctx, userID, ErrInvalidRecoveryCode)
	}

	won, err := e.recovery.MarkUsed(ctx, match.ID)
	if err != nil {
		e.log.Error("recovery code mark used failed", zap.String("code_id", match.ID), zap.Error(err))
		return e.recoveryFailed(ctx, userID, persistenceError(err))
	}
	if !won {
		return e.recoveryFailed(ctx, userID, ErrInvalidRecoveryCode)
	}

	e.metricInc(MetricRecoveryCodeUsed)
	e.emitAudit(ctx, auditEventRecoveryUsed, true, userID, "", nil, func() map[string]string {
		return map[string]string{"code_id": match.ID, "remaining": strconv.Itoa(len(codes) - 1)}
	})
	return nil
}

func (e *Engine) recoveryFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricRecoveryCodeFailed)
	e.emitAudit(ctx, auditEventRecoveryFailed, false, userID, "", err, nil)
	return err
}
