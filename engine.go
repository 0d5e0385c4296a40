package goGate

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MrEthical07/goGate/internal"
	internalaudit "github.com/MrEthical07/goGate/internal/audit"
	"github.com/MrEthical07/goGate/internal/rate"
	"github.com/MrEthical07/goGate/internal/stores"
	"github.com/MrEthical07/goGate/jwt"
	"github.com/MrEthical07/goGate/password"
	"github.com/MrEthical07/goGate/session"
)

// Engine is the session authentication service and the production
// [SessionResolver]. It is safe for concurrent use once built.
type Engine struct {
	config  Config
	store   *session.Store
	cache   *sessionCache
	limiter *rate.Limiter
	resets  *stores.PasswordResetStore
	users   UserStore
	mailer  Mailer
	onReset PasswordResetHook
	hasher  *password.Argon2
	tokens  *jwt.Manager
	audit   *internalaudit.Dispatcher
	metrics *Metrics
	logger  *slog.Logger
	clock   func() time.Time
}

var _ SessionResolver = (*Engine)(nil)

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns how many audit events were dropped under
// backpressure.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// RecordDecision counts one gate outcome.
func (e *Engine) RecordDecision(kind DecisionKind) {
	switch kind {
	case Permit:
		e.metricInc(MetricGatePermit)
	case DenyForbidden:
		e.metricInc(MetricGateForbidden)
	default:
		e.metricInc(MetricGateUnauthenticated)
	}
}

// RecordBackendFailure counts one gate response caused by an unreachable
// session store.
func (e *Engine) RecordBackendFailure() {
	e.metricInc(MetricGateBackendFailure)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

// Ping checks that the session store answers.
func (e *Engine) Ping(ctx context.Context) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if _, err := e.store.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrAuthBackend, err)
	}
	return nil
}

/*
====================================
RESOLUTION
====================================
*/

// Resolve implements [SessionResolver]. It reads the session cookie, or
// failing that a bearer access token, and returns the live session it
// names. A missing, malformed, expired or revoked credential yields
// (nil, nil). Only a store failure yields an error, wrapping
// [ErrAuthBackend].
func (e *Engine) Resolve(ctx context.Context, header http.Header) (*Session, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthBackend, ErrEngineNotReady)
	}

	kind, credential := ExtractCredential(header, e.config.Session.CookieName)
	switch kind {
	case CredentialCookie:
		return e.ResolveToken(ctx, credential)
	case CredentialBearer:
		return e.resolveAccessToken(ctx, credential)
	default:
		return nil, nil
	}
}

// ResolveToken resolves an opaque session token as carried by the session
// cookie.
func (e *Engine) ResolveToken(ctx context.Context, token string) (*Session, error) {
	if e == nil || e.store == nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthBackend, ErrEngineNotReady)
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricResolveLatency, time.Since(start))
	}()

	sessionID, secret, err := internal.DecodeToken(token)
	if err != nil {
		return nil, nil
	}

	rec, err := e.loadSession(ctx, sessionID)
	if err != nil || rec == nil {
		return nil, err
	}

	hash := internal.HashSecret(secret)
	if subtle.ConstantTimeCompare(rec.SecretHash[:], hash[:]) != 1 {
		return nil, nil
	}

	return toSession(rec), nil
}

func (e *Engine) resolveAccessToken(ctx context.Context, token string) (*Session, error) {
	if e.tokens == nil {
		return nil, nil
	}

	start := time.Now()
	defer func() {
		e.metrics.Observe(MetricResolveLatency, time.Since(start))
	}()

	claims, err := e.tokens.ParseAccess(token)
	if err != nil {
		return nil, nil
	}

	rec, err := e.loadSession(ctx, claims.SID)
	if err != nil || rec == nil {
		return nil, err
	}
	if rec.UserID != claims.UID {
		return nil, nil
	}

	return toSession(rec), nil
}

// loadSession returns (nil, nil) for a missing session and wraps
// [ErrAuthBackend] for everything the store could not answer.
func (e *Engine) loadSession(ctx context.Context, sessionID string) (*session.Session, error) {
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return nil, nil
	}

	if rec, ok := e.cache.get(sessionID); ok {
		if e.now().Unix() < rec.ExpiresAt {
			e.metricInc(MetricResolveCacheHit)
			return rec, nil
		}
		e.cache.remove(sessionID)
	}
	e.metricInc(MetricResolveCacheMiss)

	epoch := e.cache.epoch()
	rec, err := e.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthBackend, err)
	}
	if !Role(rec.Role).Valid() {
		return nil, fmt.Errorf("%w: %w: unknown role code %d", ErrAuthBackend, session.ErrSessionCorrupt, rec.Role)
	}

	// A purge that ran while the store was read may have rewritten rec.
	e.cache.addIfCurrent(rec, epoch)
	return rec, nil
}

func toSession(rec *session.Session) *Session {
	return &Session{
		SessionID:     rec.SessionID,
		UserID:        rec.UserID,
		DisplayName:   rec.DisplayName,
		Email:         rec.Email,
		Role:          Role(rec.Role),
		EmailVerified: rec.EmailVerified,
		CreatedAt:     time.Unix(rec.CreatedAt, 0),
		ExpiresAt:     time.Unix(rec.ExpiresAt, 0),
	}
}

/*
====================================
SIGN IN / SIGN OUT
====================================
*/

// SignIn verifies email and password and opens a new session. Unknown
// emails and wrong passwords both return [ErrInvalidCredentials]. Failed
// attempts are throttled per email and per client IP (see [WithClientIP]).
func (e *Engine) SignIn(ctx context.Context, email, pass string) (*AuthResult, error) {
	if e == nil || e.users == nil || e.hasher == nil {
		return nil, ErrEngineNotReady
	}

	email = normalizeEmail(email)
	ip := ClientIPFromContext(ctx)

	if err := e.limiter.CheckSignIn(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return nil, e.signInRateLimited(ctx, email, "")
		}
		return nil, fmt.Errorf("%w: %v", ErrAuthBackend, err)
	}

	if email == "" || pass == "" {
		return nil, e.failSignIn(ctx, email, ip, "", "empty_credentials")
	}

	user, err := e.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, e.failSignIn(ctx, email, ip, "", "user_not_found")
		}
		return nil, err
	}

	ok, err := e.hasher.Verify(pass, user.PasswordHash)
	if err != nil || !ok {
		return nil, e.failSignIn(ctx, email, ip, user.UserID, "password_mismatch")
	}

	if needsUpgrade, err := e.hasher.NeedsUpgrade(user.PasswordHash); err == nil && needsUpgrade {
		if upgraded, err := e.hasher.Hash(pass); err == nil {
			// Best effort: the sign-in proceeds with the old hash.
			if err := e.users.UpdatePasswordHash(ctx, user.UserID, upgraded); err != nil {
				e.logger.WarnContext(ctx, "password hash upgrade failed", "user_id", user.UserID, "error", err)
			}
		}
	}
	pass = ""

	if err := e.limiter.ResetSignIn(ctx, email, ip); err != nil {
		e.logger.WarnContext(ctx, "sign-in throttle reset failed", "error", err)
	}

	result, err := e.openSession(ctx, user)
	if err != nil {
		e.metricInc(MetricSignInFailure)
		e.emitAudit(ctx, auditEventSignInFailure, false, user.UserID, "", err, func() map[string]string {
			return map[string]string{"reason": "session_creation"}
		})
		return nil, err
	}

	e.metricInc(MetricSignInSuccess)
	e.emitAudit(ctx, auditEventSignInSuccess, true, user.UserID, result.Session.SessionID, nil, nil)

	return result, nil
}

func (e *Engine) failSignIn(ctx context.Context, email, ip, userID, reason string) error {
	if err := e.limiter.IncrementSignIn(ctx, email, ip); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return e.signInRateLimited(ctx, email, userID)
		}
		e.logger.WarnContext(ctx, "sign-in throttle unavailable", "error", err)
	}

	e.metricInc(MetricSignInFailure)
	e.emitAudit(ctx, auditEventSignInFailure, false, userID, "", ErrInvalidCredentials, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return ErrInvalidCredentials
}

func (e *Engine) signInRateLimited(ctx context.Context, email, userID string) error {
	e.metricInc(MetricSignInRateLimited)
	e.emitAudit(ctx, auditEventSignInRateLimited, false, userID, "", ErrSignInRateLimited, nil)
	e.emitRateLimit(ctx, "sign_in", func() map[string]string {
		return map[string]string{"email": email}
	})
	return ErrSignInRateLimited
}

// openSession persists a fresh session for user and builds the result
// handed back to the client.
func (e *Engine) openSession(ctx context.Context, user UserRecord) (*AuthResult, error) {
	sid, err := internal.NewSessionID()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	secret, err := internal.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	sessionID := sid.String()
	token, err := internal.EncodeToken(sessionID, secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}

	now := e.now()
	lifetime := e.config.Session.ExpiresIn
	rec := &session.Session{
		SessionID:     sessionID,
		UserID:        user.UserID,
		DisplayName:   user.Name,
		Email:         user.Email,
		Role:          uint8(user.Role),
		EmailVerified: user.EmailVerified,
		SecretHash:    internal.HashSecret(secret),
		CreatedAt:     now.Unix(),
		UpdatedAt:     now.Unix(),
		ExpiresAt:     now.Add(lifetime).Unix(),
	}

	if err := e.store.Save(ctx, rec, lifetime); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	e.cache.add(rec)
	e.metricInc(MetricSessionCreated)

	result := &AuthResult{
		User:    user,
		Session: toSession(rec),
		Token:   token,
	}
	result.User.PasswordHash = ""

	if e.tokens != nil {
		access, exp, err := e.tokens.CreateAccess(user.UserID, sessionID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
		}
		result.AccessToken = access
		result.AccessExpiresAt = exp
	}

	return result, nil
}

// SignOut revokes the session named by an opaque session token. Unknown,
// malformed or already revoked tokens are not an error.
func (e *Engine) SignOut(ctx context.Context, token string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	sessionID, secret, err := internal.DecodeToken(token)
	if err != nil {
		return nil
	}

	rec, err := e.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			e.cache.remove(sessionID)
			return nil
		}
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	hash := internal.HashSecret(secret)
	if subtle.ConstantTimeCompare(rec.SecretHash[:], hash[:]) != 1 {
		return nil
	}

	return e.revoke(ctx, rec.UserID, sessionID)
}

// RevokeSession removes one session by ID. Callers must already have
// authenticated the session, for example through [Engine.Resolve].
func (e *Engine) RevokeSession(ctx context.Context, sess *Session) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}
	if sess == nil {
		return nil
	}
	return e.revoke(ctx, sess.UserID, sess.SessionID)
}

func (e *Engine) revoke(ctx context.Context, userID, sessionID string) error {
	if err := e.store.Delete(ctx, sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}
	e.cache.remove(sessionID)

	e.metricInc(MetricSignOut)
	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, auditEventSignOut, true, userID, sessionID, nil, nil)
	return nil
}

// SignOutAll revokes every session of userID.
func (e *Engine) SignOutAll(ctx context.Context, userID string) error {
	if e == nil || e.store == nil {
		return ErrEngineNotReady
	}

	ids, err := e.store.DeleteAllForUser(ctx, userID)
	if err != nil {
		e.emitAudit(ctx, auditEventSignOutAll, false, userID, "", ErrSessionInvalidationFailed, nil)
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}
	e.cache.remove(ids...)
	e.cache.removeUser(userID)

	e.metricInc(MetricSignOutAll)
	e.metrics.Add(MetricSessionInvalidated, uint64(len(ids)))
	e.emitAudit(ctx, auditEventSignOutAll, true, userID, "", nil, func() map[string]string {
		return map[string]string{"sessions": fmt.Sprint(len(ids))}
	})
	return nil
}

/*
====================================
COOKIES
====================================
*/

// CookieName returns the configured session cookie name.
func (e *Engine) CookieName() string {
	return e.config.Session.CookieName
}

// SessionCookie builds the Set-Cookie value carrying token for the full
// session lifetime.
func (e *Engine) SessionCookie(token string) *http.Cookie {
	return &http.Cookie{
		Name:     e.config.Session.CookieName,
		Value:    token,
		Path:     e.config.Session.CookiePath,
		Domain:   e.config.Session.CookieDomain,
		MaxAge:   int(e.config.Session.ExpiresIn / time.Second),
		Secure:   e.config.Session.SecureCookie,
		HttpOnly: true,
		SameSite: e.config.Session.SameSitePolicy,
	}
}

// ClearSessionCookie builds a Set-Cookie value that deletes the session
// cookie.
func (e *Engine) ClearSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     e.config.Session.CookieName,
		Value:    "",
		Path:     e.config.Session.CookiePath,
		Domain:   e.config.Session.CookieDomain,
		MaxAge:   -1,
		Secure:   e.config.Session.SecureCookie,
		HttpOnly: true,
		SameSite: e.config.Session.SameSitePolicy,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
