package goGate

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/MrEthical07/goGate/password"
)

const maxNameLength = 128

// SignUp creates an account with [Config.Account.DefaultRole] and, when
// Account.AutoSignIn is set, opens its first session. The request carries no
// role; callers can never choose one.
func (e *Engine) SignUp(ctx context.Context, req SignUpRequest) (*AuthResult, error) {
	if e == nil || e.users == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}
	if !e.config.Account.AllowSignUp {
		e.emitAudit(ctx, auditEventSignUpFailure, false, "", "", ErrAccountCreationDisabled, func() map[string]string {
			return map[string]string{"reason": "feature_disabled"}
		})
		return nil, ErrAccountCreationDisabled
	}

	user, err := createAccount(ctx, e.users, e.hasher, req, e.config.Account.DefaultRole)
	if err != nil {
		return nil, e.failSignUp(ctx, err)
	}

	e.metricInc(MetricSignUpSuccess)
	e.emitAudit(ctx, auditEventSignUpSuccess, true, user.UserID, "", nil, func() map[string]string {
		return map[string]string{"role": user.Role.String()}
	})

	if !e.config.Account.AutoSignIn {
		user.PasswordHash = ""
		return &AuthResult{User: user}, nil
	}

	return e.openSession(ctx, user)
}

// createAccount validates req, hashes its password and stores a new account
// with role. Failures wrap [ErrAccountCreationInvalid] or [ErrPasswordPolicy],
// or are [ErrAccountExists].
func createAccount(ctx context.Context, users UserStore, hasher *password.Argon2, req SignUpRequest, role Role) (UserRecord, error) {
	name := strings.TrimSpace(req.Name)
	email := normalizeEmail(req.Email)
	if err := validateSignUp(name, email); err != nil {
		return UserRecord{}, err
	}
	if !role.Valid() {
		return UserRecord{}, ErrRoleInvalid
	}

	hash, err := hasher.Hash(req.Password)
	if err != nil {
		if errors.Is(err, password.ErrPolicy) {
			return UserRecord{}, fmt.Errorf("%w: %v", ErrPasswordPolicy, err)
		}
		return UserRecord{}, err
	}

	return users.CreateUser(ctx, CreateUserInput{
		UserID:       uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		Role:         role,
	})
}

func (e *Engine) failSignUp(ctx context.Context, err error) error {
	var reason string
	switch {
	case errors.Is(err, ErrAccountCreationInvalid):
		reason = "invalid_request"
	case errors.Is(err, ErrPasswordPolicy):
		reason = "password_policy"
	case errors.Is(err, ErrAccountExists):
		e.metricInc(MetricSignUpDuplicate)
		reason = "duplicate"
		err = ErrAccountExists
	default:
		return err
	}
	e.emitAudit(ctx, auditEventSignUpFailure, false, "", "", err, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return err
}

func validateSignUp(name, email string) error {
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return fmt.Errorf("%w: name", ErrAccountCreationInvalid)
	}
	if email == "" {
		return fmt.Errorf("%w: email", ErrAccountCreationInvalid)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email", ErrAccountCreationInvalid)
	}
	return nil
}

// SetRole changes the role of userID and rewrites the role of every live
// session so the next request is gated with the new role. When the
// sessions cannot be rewritten they are revoked instead.
func (e *Engine) SetRole(ctx context.Context, userID string, role Role) (UserRecord, error) {
	if e == nil || e.users == nil || e.store == nil {
		return UserRecord{}, ErrEngineNotReady
	}
	if !role.Valid() {
		return UserRecord{}, ErrRoleInvalid
	}

	user, err := e.users.UpdateRole(ctx, userID, role)
	if err != nil {
		return UserRecord{}, err
	}
	user.PasswordHash = ""

	ids, err := e.store.UpdateRole(ctx, userID, uint8(role))
	e.cache.remove(ids...)
	e.cache.removeUser(userID)
	if err != nil {
		e.logger.WarnContext(ctx, "session role rewrite failed, revoking sessions", "user_id", userID, "error", err)
		if err := e.SignOutAll(ctx, userID); err != nil {
			e.emitAudit(ctx, auditEventRoleChange, false, userID, "", err, nil)
			return user, err
		}
	}

	e.metricInc(MetricRoleChange)
	e.emitAudit(ctx, auditEventRoleChange, true, userID, "", nil, func() map[string]string {
		return map[string]string{
			"role":     role.String(),
			"sessions": fmt.Sprint(len(ids)),
		}
	})

	return user, nil
}
