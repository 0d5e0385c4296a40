package server

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	goGate "github.com/MrEthical07/goGate"
)

// defaultResetPath is where reset links land when the client sends no
// redirectTo.
const defaultResetPath = "/auth/reset-password"

type handlers struct {
	engine *goGate.Engine
	users  UserDirectory
	logger *slog.Logger
	base   *url.URL
}

type authResponse struct {
	User            userDTO    `json:"user"`
	Token           string     `json:"token,omitempty"`
	AccessToken     string     `json:"accessToken,omitempty"`
	AccessExpiresAt *time.Time `json:"accessExpiresAt,omitempty"`
}

func (h *handlers) writeAuthResult(w http.ResponseWriter, res *goGate.AuthResult) {
	body := authResponse{User: toUserDTO(res.User)}
	if res.Token != "" {
		http.SetCookie(w, h.engine.SessionCookie(res.Token))
		body.Token = res.Token
	}
	if res.AccessToken != "" {
		body.AccessToken = res.AccessToken
		exp := res.AccessExpiresAt
		body.AccessExpiresAt = &exp
	}
	writeJSON(w, http.StatusOK, body)
}

// POST /api/auth/sign-up/email
func (h *handlers) signUp(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := h.engine.SignUp(r.Context(), goGate.SignUpRequest{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		switch {
		case errors.Is(err, goGate.ErrAccountCreationInvalid):
			writeError(w, http.StatusBadRequest, msgInvalidSignUp)
		case errors.Is(err, goGate.ErrPasswordPolicy):
			writeError(w, http.StatusBadRequest, msgPasswordPolicy)
		case errors.Is(err, goGate.ErrAccountExists):
			writeError(w, http.StatusConflict, msgAccountExists)
		case errors.Is(err, goGate.ErrAccountCreationDisabled):
			writeError(w, http.StatusForbidden, msgSignUpDisabled)
		default:
			h.logger.ErrorContext(r.Context(), "sign-up failed", "error", err)
			writeError(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	h.writeAuthResult(w, res)
}

// POST /api/auth/sign-in/email
func (h *handlers) signIn(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	res, err := h.engine.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, goGate.ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, msgBadCredentials)
		case errors.Is(err, goGate.ErrSignInRateLimited):
			writeError(w, http.StatusTooManyRequests, msgTooManyAttempts)
		default:
			h.logger.ErrorContext(r.Context(), "sign-in failed", "error", err)
			writeError(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	h.writeAuthResult(w, res)
}

// POST /api/auth/sign-out
func (h *handlers) signOut(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Resolve(r.Context(), r.Header)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "sign-out: session resolution failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgAuthError)
		return
	}

	if sess != nil {
		if err := h.engine.RevokeSession(r.Context(), sess); err != nil {
			h.logger.ErrorContext(r.Context(), "sign-out failed", "user_id", sess.UserID, "error", err)
			writeError(w, http.StatusInternalServerError, msgSignOutFailed)
			return
		}
	}

	http.SetCookie(w, h.engine.ClearSessionCookie())
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// GET /api/auth/get-session
func (h *handlers) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.engine.Resolve(r.Context(), r.Header)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get-session: session resolution failed", "error", err)
		writeError(w, http.StatusInternalServerError, msgAuthError)
		return
	}
	if sess == nil {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Session sessionDTO     `json:"session"`
		User    sessionUserDTO `json:"user"`
	}{
		Session: sessionDTO{
			ID:        sess.SessionID,
			UserID:    sess.UserID,
			CreatedAt: sess.CreatedAt,
			ExpiresAt: sess.ExpiresAt,
		},
		User: toSessionUser(sess),
	})
}

// POST /api/auth/forget-password
//
// The response never depends on whether the account exists.
func (h *handlers) forgetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email      string `json:"email"`
		RedirectTo string `json:"redirectTo"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}

	redirect := h.resetRedirect(req.RedirectTo)
	if err := h.engine.RequestPasswordReset(r.Context(), req.Email, redirect); err != nil {
		h.logger.WarnContext(r.Context(), "password reset request not sent", "error", err)
	}

	writeJSON(w, http.StatusOK, map[string]bool{"status": true})
}

// POST /api/auth/reset-password
func (h *handlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token       string `json:"token"`
		NewPassword string `json:"newPassword"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadRequest)
		return
	}
	if req.Token == "" || req.NewPassword == "" {
		writeError(w, http.StatusBadRequest, msgMissingParams)
		return
	}

	err := h.engine.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		switch {
		case errors.Is(err, goGate.ErrPasswordResetInvalid), errors.Is(err, goGate.ErrPasswordResetAttempts):
			writeError(w, http.StatusBadRequest, msgInvalidToken)
		case errors.Is(err, goGate.ErrPasswordPolicy):
			writeError(w, http.StatusBadRequest, msgPasswordPolicy)
		case errors.Is(err, goGate.ErrPasswordResetDisabled):
			writeError(w, http.StatusNotFound, msgResetDisabled)
		case errors.Is(err, goGate.ErrPasswordResetUnavailable):
			h.logger.ErrorContext(r.Context(), "password reset failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, msgUnavailable)
		default:
			h.logger.ErrorContext(r.Context(), "password reset failed", "error", err)
			writeError(w, http.StatusInternalServerError, msgInternal)
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"status": true})
}

// resetRedirect keeps reset links on the configured origin. Relative
// targets are resolved against it; absolute targets on another host fall
// back to the default reset page. Without a base URL only the client's
// value is used, and only when it is relative.
func (h *handlers) resetRedirect(requested string) string {
	requested = strings.TrimSpace(requested)

	if h.base == nil {
		if strings.HasPrefix(requested, "/") && !strings.HasPrefix(requested, "//") {
			return requested
		}
		return defaultResetPath
	}

	fallback := h.base.ResolveReference(&url.URL{Path: defaultResetPath}).String()
	if requested == "" {
		return fallback
	}
	u, err := url.Parse(requested)
	if err != nil {
		return fallback
	}
	if !u.IsAbs() && u.Host == "" {
		return h.base.ResolveReference(u).String()
	}
	if u.Scheme != h.base.Scheme || u.Host != h.base.Host {
		return fallback
	}
	return u.String()
}
