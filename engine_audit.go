package goGate

import (
	"context"
	"errors"
	"time"
)

const (
	auditEventSignInSuccess          = "sign_in_success"
	auditEventSignInFailure          = "sign_in_failure"
	auditEventSignInRateLimited      = "sign_in_rate_limited"
	auditEventSignUpSuccess          = "sign_up_success"
	auditEventSignUpFailure          = "sign_up_failure"
	auditEventSignOut                = "sign_out"
	auditEventSignOutAll             = "sign_out_all"
	auditEventRoleChange             = "role_change"
	auditEventPasswordResetRequest   = "password_reset_request"
	auditEventPasswordResetConfirm   = "password_reset_confirm"
	auditEventPasswordResetReplay    = "password_reset_replay"
	auditEventRateLimitTriggered     = "rate_limit_triggered"
	auditEventSessionBackendDegraded = "session_backend_degraded"
)

// AuditErrorCode is the stable, secret-free error label carried by
// [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrUnauthenticated       AuditErrorCode = "unauthenticated"
	auditErrInvalidCredentials    AuditErrorCode = "invalid_credentials"
	auditErrRateLimited           AuditErrorCode = "rate_limited"
	auditErrInvalidToken          AuditErrorCode = "invalid_token"
	auditErrUserNotFound          AuditErrorCode = "user_not_found"
	auditErrRoleInvalid           AuditErrorCode = "role_invalid"
	auditErrPasswordPolicy        AuditErrorCode = "password_policy"
	auditErrAttemptsExceeded      AuditErrorCode = "attempts_exceeded"
	auditErrSessionCreationFailed AuditErrorCode = "session_creation_failed"
	auditErrSessionInvalidation   AuditErrorCode = "session_invalidation_failed"
	auditErrDuplicate             AuditErrorCode = "duplicate"
	auditErrInvalidRequest        AuditErrorCode = "invalid_request"
	auditErrUnavailable           AuditErrorCode = "backend_unavailable"
	auditErrInternal              AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	sessionID string,
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
		SessionID: sessionID,
		IP:        ClientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

func (e *Engine) emitRateLimit(ctx context.Context, scope string, metadataBuilder func() map[string]string) {
	e.emitAudit(ctx, auditEventRateLimitTriggered, false, "", "", nil, func() map[string]string {
		base := map[string]string{
			"scope": scope,
		}
		if metadataBuilder == nil {
			return base
		}
		for k, v := range metadataBuilder() {
			base[k] = v
		}
		return base
	})
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return auditErrUnauthenticated
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrSignInRateLimited),
		errors.Is(err, ErrPasswordResetRateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrPasswordResetInvalid):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrRoleInvalid):
		return auditErrRoleInvalid
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrPasswordResetAttempts):
		return auditErrAttemptsExceeded
	case errors.Is(err, ErrSessionCreationFailed):
		return auditErrSessionCreationFailed
	case errors.Is(err, ErrSessionInvalidationFailed):
		return auditErrSessionInvalidation
	case errors.Is(err, ErrAccountExists):
		return auditErrDuplicate
	case errors.Is(err, ErrAccountCreationInvalid),
		errors.Is(err, ErrAccountCreationDisabled):
		return auditErrInvalidRequest
	case errors.Is(err, ErrAuthBackend),
		errors.Is(err, ErrPasswordResetUnavailable),
		errors.Is(err, ErrEngineNotReady):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}
