package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/internal/repository"
	gatemw "github.com/MrEthical07/goGate/middleware"
)

// UserDirectory is the read side of the users table used by the listing
// and admin handlers. [repository.BunUserRepository] implements it.
type UserDirectory interface {
	Search(ctx context.Context, query string, page int) (repository.UserPage, error)
	Stats(ctx context.Context) (repository.UserStats, error)
	List(ctx context.Context) ([]goGate.UserRecord, error)
}

// HealthCheck reports whether one dependency is usable.
type HealthCheck func(ctx context.Context) error

// RouterOptions controls the construction of the gogate HTTP router.
// Engine and Users are required.
type RouterOptions struct {
	Engine *goGate.Engine
	Users  UserDirectory
	Logger *slog.Logger

	// BaseURL is the public origin of the web client. Password reset
	// redirects must stay on it; relative redirects are resolved against it.
	BaseURL string

	// CORSOptions enables cross-origin access, typically
	// DefaultCORSOptions(allowedOrigins).
	CORSOptions *cors.Options
	// Metrics, when set, is served on GET /metrics.
	Metrics http.Handler
	// HealthChecks run on GET /healthz, keyed by dependency name.
	HealthChecks map[string]HealthCheck
	Middleware   []func(http.Handler) http.Handler
}

// DefaultCORSOptions returns a credentialed CORS policy for origins.
func DefaultCORSOptions(origins []string) cors.Options {
	return cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}
}

// NewRouter assembles a chi.Router with shared middleware, the CORS policy,
// the auth endpoints and the gated API.
func NewRouter(opts RouterOptions) (chi.Router, error) {
	if opts.Engine == nil {
		return nil, errors.New("server: engine required")
	}
	if opts.Users == nil {
		return nil, errors.New("server: user directory required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	base, err := parseBaseURL(opts.BaseURL)
	if err != nil {
		return nil, err
	}

	h := &handlers{
		engine: opts.Engine,
		users:  opts.Users,
		logger: logger,
		base:   base,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(ClientInfo)

	// Without options the API is same-origin only.
	if opts.CORSOptions != nil {
		r.Use(cors.Handler(*opts.CORSOptions))
	}

	for _, mw := range opts.Middleware {
		if mw != nil {
			r.Use(mw)
		}
	}

	authenticated := gatemw.Gate(opts.Engine, gatemw.Options{
		Logger:   logger,
		Recorder: opts.Engine,
	})
	adminOnly := gatemw.Gate(opts.Engine, gatemw.Options{
		Roles:    goGate.NewRoleSet(goGate.RoleAdmin),
		Logger:   logger,
		Recorder: opts.Engine,
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/sign-up/email", h.signUp)
			r.Post("/sign-in/email", h.signIn)
			r.Post("/sign-out", h.signOut)
			r.Get("/get-session", h.getSession)
			r.Post("/forget-password", h.forgetPassword)
			r.Post("/reset-password", h.resetPassword)
		})

		r.With(authenticated).Get("/profile", h.profile)
		r.With(authenticated).Get("/users", h.searchUsers)

		r.Route("/admin", func(r chi.Router) {
			r.Use(adminOnly)
			r.Get("/stats", h.adminStats)
			r.Get("/users", h.adminListUsers)
			r.Patch("/users", h.adminSetRole)
		})
	})

	r.Get("/healthz", healthHandler(opts.HealthChecks, logger))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	return r, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("server: invalid base URL %q", raw)
	}
	return u, nil
}

func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		failed := map[string]string{}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "health check failed", "check", name, "error", err)
				failed[name] = "unavailable"
			}
		}
		if len(failed) > 0 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "degraded", "checks": failed})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
