package authkit

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess         = "login_success"
	auditEventLoginFailure         = "login_failure"
	auditEventMFARequired          = "mfa_required"
	auditEventMFASuccess           = "mfa_success"
	auditEventMFAFailure           = "mfa_failure"
	auditEventTokenIssued          = "token_issued"
	auditEventRefreshSuccess       = "refresh_success"
	auditEventRefreshInvalid       = "refresh_invalid"
	auditEventRefreshReuseDetected = "refresh_reuse_detected"
	auditEventRevoke               = "revoke"
	auditEventRevokeAll            = "revoke_all"
	auditEventTOTPSetupRequested   = "totp_setup_requested"
	auditEventTOTPEnabled          = "totp_enabled"
	auditEventTOTPFailure          = "totp_failure"
	auditEventTOTPSuccess          = "totp_success"
	auditEventRecoveryGenerated    = "recovery_codes_generated"
	auditEventRecoveryUsed         = "recovery_code_used"
	auditEventRecoveryFailed       = "recovery_code_failed"
	auditEventFactorRevoked        = "factor_revoked"
)

// AuditErrorCode is the stable error label carried by audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrRefreshReuse       AuditErrorCode = "refresh_reuse"
	auditErrNoPendingSetup     AuditErrorCode = "no_pending_setup"
	auditErrInvalidCode        AuditErrorCode = "invalid_code"
	auditErrNoActiveFactor     AuditErrorCode = "no_active_factor"
	auditErrInvalidRecovery    AuditErrorCode = "invalid_recovery_code"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrFactorNotFound     AuditErrorCode = "factor_not_found"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	jti string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.now().UTC(),
		EventType: eventType,
		UserID:    userID,
		JTI:       jti,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// auditErrorCode checks ErrReuseDetected before ErrPersistence because a failed
// revocation cascade carries both.
func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrReuseDetected):
		return auditErrRefreshReuse
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrInvalidPayload):
		return auditErrInvalidToken
	case errors.Is(err, ErrNoPendingSetup):
		return auditErrNoPendingSetup
	case errors.Is(err, ErrInvalidCode):
		return auditErrInvalidCode
	case errors.Is(err, ErrNoActiveFactor):
		return auditErrNoActiveFactor
	case errors.Is(err, ErrInvalidRecoveryCode):
		return auditErrInvalidRecovery
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrFactorNotFound):
		return auditErrFactorNotFound
	case errors.Is(err, ErrPersistence),
		errors.Is(err, ErrTokenSigning):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
