package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	goGate "github.com/MrEthical07/goGate"
)

// Fixed response bodies. Clients match on them, so they never change and
// never carry error details.
var (
	bodyAuthError       = []byte(`{"error":"Error de autenticación"}`)
	bodyUnauthenticated = []byte(`{"error":"No autenticado"}`)
	bodyForbidden       = []byte(`{"error":"No tienes permisos para acceder a este recurso"}`)
)

// Recorder observes gate outcomes. Exactly one method is called per
// request, except for requests abandoned by the client during resolution,
// which are not recorded. [goGate.Engine] implements it.
type Recorder interface {
	RecordDecision(kind goGate.DecisionKind)
	RecordBackendFailure()
}

// Options configures a [Gate].
type Options struct {
	// Roles allowed through. Empty means any authenticated session.
	Roles goGate.RoleSet
	// Logger receives resolver failures. Defaults to slog.Default().
	Logger *slog.Logger
	// Recorder, when set, is told the outcome of every request.
	Recorder Recorder
}

// Gate returns middleware that resolves the request's session, applies the
// role policy and either rejects the request or calls next exactly once
// with the session attached to the request context.
//
//   - resolver error or panic -> 500 {"error":"Error de autenticación"}
//   - no session              -> 401 {"error":"No autenticado"}
//   - role not allowed        -> 403 {"error":"No tienes permisos para acceder a este recurso"}
//
// A request whose client disconnected while the session was being resolved
// gets no response and counts as no outcome.
//
// Panics raised by next are not recovered here.
func Gate(resolver goGate.SessionResolver, opts Options) func(http.Handler) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			sess, err := resolve(ctx, resolver, r.Header)
			if err != nil && errors.Is(ctx.Err(), context.Canceled) {
				logger.DebugContext(ctx, "request canceled during session resolution",
					"method", r.Method,
					"path", r.URL.Path,
				)
				return
			}
			if err != nil {
				logger.ErrorContext(ctx, "session resolution failed",
					"method", r.Method,
					"path", r.URL.Path,
					"error", err,
				)
				if opts.Recorder != nil {
					opts.Recorder.RecordBackendFailure()
				}
				writeJSON(w, http.StatusInternalServerError, bodyAuthError)
				return
			}

			decision := goGate.Decide(sess, opts.Roles)
			if opts.Recorder != nil {
				opts.Recorder.RecordDecision(decision.Kind)
			}

			switch decision.Kind {
			case goGate.Permit:
				next.ServeHTTP(w, r.WithContext(goGate.WithSession(ctx, decision.Session)))
			case goGate.DenyForbidden:
				writeJSON(w, http.StatusForbidden, bodyForbidden)
			default:
				writeJSON(w, http.StatusUnauthorized, bodyUnauthenticated)
			}
		})
	}
}

// RequireRoles is Gate with only the allowed roles set. With no roles it
// admits any authenticated session.
func RequireRoles(resolver goGate.SessionResolver, roles ...goGate.Role) func(http.Handler) http.Handler {
	return Gate(resolver, Options{Roles: goGate.NewRoleSet(roles...)})
}

// WithAuth wraps a single handler.
func WithAuth(h http.Handler, resolver goGate.SessionResolver, opts Options) http.Handler {
	return Gate(resolver, opts)(h)
}

// SessionFromRequest returns the session attached by a Gate.
func SessionFromRequest(r *http.Request) (*goGate.Session, bool) {
	if r == nil {
		return nil, false
	}
	return goGate.SessionFromContext(r.Context())
}

func resolve(ctx context.Context, resolver goGate.SessionResolver, header http.Header) (sess *goGate.Session, err error) {
	if resolver == nil {
		return nil, fmt.Errorf("%w: no resolver configured", goGate.ErrAuthBackend)
	}

	defer func() {
		if rec := recover(); rec != nil {
			sess = nil
			err = fmt.Errorf("%w: resolver panic: %v", goGate.ErrAuthBackend, rec)
		}
	}()

	return resolver.Resolve(ctx, header)
}

func writeJSON(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
