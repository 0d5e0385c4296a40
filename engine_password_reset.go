package goGate

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"time"

	"github.com/MrEthical07/goGate/internal"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/internal/stores"
	"github.com/MrEthical07/goGate/password"
)

// RequestPasswordReset mails a single-use reset link to email when an
// account exists. Unknown emails return nil after a short randomized
// delay, so the result never reveals whether an account exists.
//
// redirectTo is the page that will receive the token as its "token" query
// parameter. Requesting a new link invalidates the previous one.
func (e *Engine) RequestPasswordReset(ctx context.Context, email, redirectTo string) error {
	if e == nil || e.users == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled || e.resets == nil {
		return ErrPasswordResetDisabled
	}

	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	if err := e.limiter.AllowResetRequest(ctx, email, ClientIPFromContext(ctx)); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			e.emitRateLimit(ctx, "password_reset", nil)
			return ErrPasswordResetRateLimited
		}
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			e.emitAudit(ctx, auditEventPasswordResetRequest, false, "", "", ErrUserNotFound, nil)
			return sleepEnumerationDelay(ctx)
		}
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}

	resetID, err := internal.NewSessionID()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}
	token, err := internal.EncodeToken(resetID.String(), secret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}

	ttl := e.config.PasswordReset.TokenTTL
	expiresAt := e.now().Add(ttl)
	err = e.resets.Save(ctx, resetID.String(), &stores.PasswordResetRecord{
		UserID:     user.UserID,
		SecretHash: internal.HashSecret(secret),
		ExpiresAt:  expiresAt.Unix(),
	}, ttl)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}

	msg := PasswordResetMessage{
		UserID:    user.UserID,
		Email:     user.Email,
		Name:      user.Name,
		Token:     token,
		URL:       resetURL(redirectTo, token),
		ExpiresAt: expiresAt,
	}
	if err := e.mailer.SendPasswordReset(ctx, msg); err != nil {
		e.logger.ErrorContext(ctx, "password reset mail failed", "user_id", user.UserID, "error", err)
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}

	e.metricInc(MetricPasswordResetRequest)
	e.emitAudit(ctx, auditEventPasswordResetRequest, true, user.UserID, "", nil, nil)
	return nil
}

// ConfirmPasswordReset consumes a reset token, stores the new password and
// revokes every session of the account. A token is accepted once; after
// PasswordReset.MaxAttempts wrong secrets it is burned.
func (e *Engine) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	if e == nil || e.users == nil || e.hasher == nil {
		return ErrEngineNotReady
	}
	if !e.config.PasswordReset.Enabled || e.resets == nil {
		return ErrPasswordResetDisabled
	}

	// Policy first, so a weak password does not spend the token.
	if err := e.hasher.CheckPolicy(newPassword); err != nil {
		return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
	}

	resetID, secret, err := internal.DecodeToken(token)
	if err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		return ErrPasswordResetInvalid
	}

	record, err := e.resets.Consume(ctx, resetID, internal.HashSecret(secret), e.config.PasswordReset.MaxAttempts)
	if err != nil {
		mapped := mapPasswordResetStoreError(err)
		switch {
		case errors.Is(mapped, ErrPasswordResetAttempts):
			e.metricInc(MetricPasswordResetAttemptsExceeded)
		case errors.Is(mapped, ErrPasswordResetInvalid):
			e.emitAudit(ctx, auditEventPasswordResetReplay, false, "", "", mapped, nil)
		}
		e.metricInc(MetricPasswordResetConfirmFailure)
		return mapped
	}

	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		if errors.Is(err, password.ErrPolicy) {
			return fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return err
	}

	if err := e.users.UpdatePasswordHash(ctx, record.UserID, hash); err != nil {
		e.metricInc(MetricPasswordResetConfirmFailure)
		if errors.Is(err, ErrUserNotFound) {
			return ErrPasswordResetInvalid
		}
		return err
	}

	if err := e.SignOutAll(ctx, record.UserID); err != nil {
		e.emitAudit(ctx, auditEventPasswordResetConfirm, false, record.UserID, "", err, nil)
		return err
	}

	e.metricInc(MetricPasswordResetConfirmSuccess)
	e.emitAudit(ctx, auditEventPasswordResetConfirm, true, record.UserID, "", nil, nil)

	if e.onReset != nil {
		user, err := e.users.GetUserByID(ctx, record.UserID)
		if err != nil {
			e.logger.WarnContext(ctx, "password reset hook skipped", "user_id", record.UserID, "error", err)
			return nil
		}
		user.PasswordHash = ""
		e.onReset(ctx, user)
	}

	return nil
}

func resetURL(redirectTo, token string) string {
	if redirectTo == "" {
		return ""
	}
	u, err := url.Parse(redirectTo)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}

func mapPasswordResetStoreError(err error) error {
	switch {
	case errors.Is(err, stores.ErrResetSecretMismatch), errors.Is(err, stores.ErrResetNotFound):
		return ErrPasswordResetInvalid
	case errors.Is(err, stores.ErrResetAttemptsExceeded):
		return ErrPasswordResetAttempts
	default:
		return fmt.Errorf("%w: %v", ErrPasswordResetUnavailable, err)
	}
}

func sleepEnumerationDelay(ctx context.Context) error {
	minMs := int64(20)
	maxMs := int64(40)
	span := maxMs - minMs + 1

	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return nil
	}

	timer := time.NewTimer(time.Duration(minMs+n.Int64()) * time.Millisecond)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
