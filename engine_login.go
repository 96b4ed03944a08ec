package authkit

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/authkit/internal"
	"go.uber.org/zap"
)

var loginFactors = []FactorType{FactorTOTP, FactorRecovery}

// Login verifies primary credentials. Users without an active TOTP factor get
// a session right away; the others get a login transaction to complete with
// ConfirmLoginMFA.
func (e *Engine) Login(ctx context.Context, username, password string, opts ...IssueOption) (*LoginResult, error) {
	start := time.Now()
	defer e.metricObserve(MetricLoginLatency, start)

	identity, err := e.Authenticate(ctx, username, password)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", err, nil)
		return nil, err
	}

	needsMFA, err := e.NeedsMFA(ctx, identity.ID)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, "", err, nil)
		return nil, err
	}

	if needsMFA {
		loginTx, err := internal.NewLoginTxID()
		if err != nil {
			return nil, err
		}
		if err := e.loginTxs.Put(ctx, loginTx, identity.ID, e.config.LoginTx.TTL); err != nil {
			e.log.Error("login transaction store failed", zap.String("user_id", identity.ID), zap.Error(err))
			err = persistenceError(err)
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, "", err, nil)
			return nil, err
		}

		e.metricInc(MetricMFARequired)
		e.emitAudit(ctx, auditEventMFARequired, true, identity.ID, "", nil, nil)
		factors := make([]FactorType, len(loginFactors))
		copy(factors, loginFactors)
		return &LoginResult{
			MFARequired: true,
			LoginTx:     loginTx,
			Factors:     factors,
		}, nil
	}

	sess, err := e.Issue(ctx, *identity, opts...)
	if err != nil {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, identity.ID, "", err, nil)
		return nil, err
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, identity.ID, "", nil, nil)
	return &LoginResult{Session: sess}, nil
}

// ResolveLoginTx returns the user id bound to a live login transaction.
func (e *Engine) ResolveLoginTx(ctx context.Context, loginTx string) (string, error) {
	loginTx = strings.TrimSpace(loginTx)
	if loginTx == "" {
		return "", ErrLoginTxNotFound
	}
	userID, err := e.loginTxs.Resolve(ctx, loginTx)
	if err != nil {
		if errors.Is(err, ErrLoginTxNotFound) {
			return "", ErrLoginTxNotFound
		}
		e.log.Error("login transaction resolve failed", zap.Error(err))
		return "", persistenceError(err)
	}
	if userID == "" {
		return "", ErrLoginTxNotFound
	}
	return userID, nil
}

// ConfirmLoginMFA finishes a login that returned MFARequired. The transaction
// is claimed before the factor is checked, so concurrent confirms on one
// transaction spend at most one code and yield at most one session. The
// claim is final: a wrong code ends the transaction and the caller logs in
// again.
func (e *Engine) ConfirmLoginMFA(ctx context.Context, loginTx string, factor FactorType, code string, opts ...IssueOption) (*IssuedSession, error) {
	userID, err := e.ResolveLoginTx(ctx, loginTx)
	if err != nil {
		return nil, e.mfaLoginFailed(ctx, "", err)
	}
	if factor != FactorTOTP && factor != FactorRecovery {
		return nil, e.mfaLoginFailed(ctx, userID, ErrUnsupportedFactor)
	}

	claimed, err := e.loginTxs.Consume(ctx, strings.TrimSpace(loginTx))
	if err != nil {
		e.log.Error("login transaction consume failed", zap.String("user_id", userID), zap.Error(err))
		return nil, e.mfaLoginFailed(ctx, userID, persistenceError(err))
	}
	if !claimed {
		return nil, e.mfaLoginFailed(ctx, userID, ErrLoginTxNotFound)
	}

	if factor == FactorTOTP {
		err = e.VerifyTOTP(ctx, userID, code)
	} else {
		err = e.VerifyRecoveryCode(ctx, userID, code)
	}
	if err != nil {
		return nil, e.mfaLoginFailed(ctx, userID, err)
	}

	sess, err := e.IssueForUserID(ctx, userID, opts...)
	if err != nil {
		return nil, e.mfaLoginFailed(ctx, userID, err)
	}

	e.metricInc(MetricMFALoginSuccess)
	e.emitAudit(ctx, auditEventMFASuccess, true, userID, "", nil, func() map[string]string {
		return map[string]string{"factor": string(factor)}
	})
	return sess, nil
}

func (e *Engine) mfaLoginFailed(ctx context.Context, userID string, err error) error {
	e.metricInc(MetricMFALoginFailure)
	e.emitAudit(ctx, auditEventMFAFailure, false, userID, "", err, nil)
	return err
}
