package authkit

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

// SetupTOTP creates a new pending TOTP factor for userID and returns its
// otpauth:// provisioning URL labelled serviceName:username. Nothing is
// activated; a later setup supersedes an earlier pending one.
func (e *Engine) SetupTOTP(ctx context.Context, userID, username, serviceName string) (string, error) {
	identity, err := e.identityByID(ctx, userID)
	if err != nil {
		return "", err
	}
	account := strings.TrimSpace(username)
	if account == "" {
		account = identity.Username
	}
	serviceName = strings.TrimSpace(serviceName)
	if serviceName == "" {
		serviceName = e.config.Token.Issuer
	}

	enrollment, err := e.totp.Enroll(serviceName, account)
	if err != nil {
		return "", err
	}
	sealed, err := e.sealer.Seal(enrollment.Secret)
	if err != nil {
		e.log.Error("totp secret seal failed", zap.String("user_id", userID), zap.Error(err))
		return "", persistenceError(err)
	}

	factor, err := e.factors.CreatePending(ctx, userID, FactorTOTP, sealed)
	if err != nil {
		e.log.Error("totp pending factor create failed", zap.String("user_id", userID), zap.Error(err))
		return "", persistenceError(err)
	}

	e.metricInc(MetricTOTPSetup)
	e.emitAudit(ctx, auditEventTOTPSetupRequested, true, userID, "", nil, func() map[string]string {
		return map[string]string{"factor_id": factor.ID}
	})
	return enrollment.URL, nil
}

// ActivateTOTP validates code against the newest pending factor and makes it
// the active TOTP factor of the user. A wrong code leaves state unchanged.
func (e *Engine) ActivateTOTP(ctx context.Context, userID, code string) error {
	pending, err := e.factors.GetPending(ctx, userID, FactorTOTP)
	if err != nil {
		e.log.Error("pending factor lookup failed", zap.String("user_id", userID), zap.Error(err))
		return persistenceError(err)
	}
	if pending == nil {
		return ErrNoPendingSetup
	}

	if err := e.checkTOTP(ctx, pending, code); err != nil {
		e.emitAudit(ctx, auditEventTOTPFailure, false, userID, "", err, nil)
		return err
	}

	activated, err := e.factors.ActivateFactor(ctx, pending.ID)
	if err != nil {
		e.log.Error("factor activation failed", zap.String("factor_id", pending.ID), zap.Error(err))
		return persistenceError(err)
	}
	if !activated {
		return ErrNoPendingSetup
	}

	e.metricInc(MetricTOTPActivated)
	e.emitAudit(ctx, auditEventTOTPEnabled, true, userID, "", nil, func() map[string]string {
		return map[string]string{"factor_id": pending.ID}
	})
	return nil
}

// VerifyTOTP validates code against the active TOTP factor. Each time step is
// accepted once; a replayed code fails with ErrInvalidCode.
func (e *Engine) VerifyTOTP(ctx context.Context, userID, code string) error {
	active, err := e.factors.GetActive(ctx, userID, FactorTOTP)
	if err != nil {
		e.log.Error("active factor lookup failed", zap.String("user_id", userID), zap.Error(err))
		return persistenceError(err)
	}
	if active == nil {
		return ErrNoActiveFactor
	}

	if err := e.checkTOTP(ctx, active, code); err != nil {
		e.emitAudit(ctx, auditEventTOTPFailure, false, userID, "", err, nil)
		return err
	}

	e.metricInc(MetricTOTPSuccess)
	e.emitAudit(ctx, auditEventTOTPSuccess, true, userID, "", nil, nil)
	return nil
}

// checkTOTP validates code and claims its time step for factor.
func (e *Engine) checkTOTP(ctx context.Context, factor *MFAFactor, code string) error {
	secret, err := e.sealer.Open(factor.Secret)
	if err != nil {
		e.log.Error("totp secret open failed", zap.String("factor_id", factor.ID), zap.Error(err))
		return persistenceError(err)
	}

	step, ok, err := e.totp.Validate(secret, code, e.now())
	if err != nil {
		e.log.Error("totp validation failed", zap.String("factor_id", factor.ID), zap.Error(err))
		return persistenceError(err)
	}
	if !ok {
		e.metricInc(MetricTOTPFailure)
		return ErrInvalidCode
	}
	if step <= factor.LastUsedStep {
		e.metricInc(MetricTOTPReplay)
		return ErrInvalidCode
	}

	advanced, err := e.factors.AdvanceStep(ctx, factor.ID, step)
	if err != nil {
		e.log.Error("totp step update failed", zap.String("factor_id", factor.ID), zap.Error(err))
		return persistenceError(err)
	}
	if !advanced {
		e.metricInc(MetricTOTPReplay)
		return ErrInvalidCode
	}
	return nil
}

// NeedsMFA reports whether userID has an active TOTP factor. Pending factors
// never count.
func (e *Engine) NeedsMFA(ctx context.Context, userID string) (bool, error) {
	active, err := e.factors.GetActive(ctx, userID, FactorTOTP)
	if err != nil {
		e.log.Error("active factor lookup failed", zap.String("user_id", userID), zap.Error(err))
		return false, persistenceError(err)
	}
	return active != nil, nil
}

// ListFactors returns every factor of userID with secrets cleared.
func (e *Engine) ListFactors(ctx context.Context, userID string) ([]MFAFactor, error) {
	factors, err := e.factors.ListByUser(ctx, userID)
	if err != nil {
		return nil, persistenceError(err)
	}
	out := make([]MFAFactor, 0, len(factors))
	for _, f := range factors {
		if f == nil {
			continue
		}
		c := *f
		c.Secret = ""
		out = append(out, c)
	}
	return out, nil
}

// RevokeFactor revokes one factor owned by userID.
func (e *Engine) RevokeFactor(ctx context.Context, userID, factorID string) error {
	factors, err := e.factors.ListByUser(ctx, userID)
	if err != nil {
		return persistenceError(err)
	}

	var target *MFAFactor
	for _, f := range factors {
		if f != nil && f.ID == factorID {
			target = f
			break
		}
	}
	if target == nil {
		return ErrFactorNotFound
	}
	if target.Status == FactorRevoked {
		return nil
	}

	if err := e.factors.RevokeFactor(ctx, factorID); err != nil {
		e.log.Error("factor revoke failed", zap.String("factor_id", factorID), zap.Error(err))
		return persistenceError(err)
	}

	e.metricInc(MetricFactorRevoked)
	e.emitAudit(ctx, auditEventFactorRevoked, true, userID, "", nil, func() map[string]string {
		return map[string]string{"factor_id": factorID, "type": string(target.Type)}
	})
	return nil
}
