package goGate

import "errors"

// Gate-level taxonomy.
var (
	// ErrUnauthenticated means no valid session accompanied the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the session's role is not in the allowed set.
	ErrForbidden = errors.New("forbidden")
	// ErrAuthBackend means the session store could not be consulted. It must
	// never be reported to a client as "unauthenticated".
	ErrAuthBackend = errors.New("auth backend unavailable")
)

var (
	// ErrInvalidCredentials is returned by sign-in for unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserNotFound is returned by a UserStore when no record matches.
	ErrUserNotFound = errors.New("user not found")
	// ErrAccountExists is returned by sign-up when the email is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrAccountCreationDisabled is returned by sign-up when Account.AllowSignUp is false.
	ErrAccountCreationDisabled = errors.New("account creation disabled")
	// ErrAccountCreationInvalid is returned by sign-up for a malformed request.
	ErrAccountCreationInvalid = errors.New("invalid account creation request")
	// ErrRoleInvalid is returned for any role outside the closed set.
	ErrRoleInvalid = errors.New("invalid role")
	// ErrPasswordPolicy is returned when a password violates the length policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrSignInRateLimited is returned when the sign-in attempt budget is spent.
	ErrSignInRateLimited = errors.New("sign-in rate limited")
	// ErrSessionCreationFailed is returned when a new session cannot be persisted.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionInvalidationFailed is returned when sessions cannot be revoked.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrPasswordResetDisabled is returned when the reset flow is turned off.
	ErrPasswordResetDisabled = errors.New("password reset disabled")
	// ErrPasswordResetInvalid covers unknown, expired, replayed or malformed reset tokens.
	ErrPasswordResetInvalid = errors.New("password reset token invalid")
	// ErrPasswordResetAttempts is returned once a reset token exhausted its attempts.
	ErrPasswordResetAttempts = errors.New("password reset attempts exceeded")
	// ErrPasswordResetRateLimited is returned when reset requests are throttled.
	ErrPasswordResetRateLimited = errors.New("password reset rate limited")
	// ErrPasswordResetUnavailable is returned when the reset backend fails.
	ErrPasswordResetUnavailable = errors.New("password reset backend unavailable")
	// ErrEngineNotReady is returned when a required collaborator was not configured.
	ErrEngineNotReady = errors.New("engine not initialized")
)
