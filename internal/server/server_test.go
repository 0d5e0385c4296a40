package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/internal/db/bunx"
	"github.com/MrEthical07/goGate/internal/migrations"
	"github.com/MrEthical07/goGate/internal/repository"
)

type captureMailer struct {
	mu   sync.Mutex
	sent []goGate.PasswordResetMessage
}

func (m *captureMailer) SendPasswordReset(_ context.Context, msg goGate.PasswordResetMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *captureMailer) messages() []goGate.PasswordResetMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]goGate.PasswordResetMessage(nil), m.sent...)
}

type testServer struct {
	handler http.Handler
	engine  *goGate.Engine
	repo    *repository.BunUserRepository
	mr      *miniredis.Miniredis
	mailer  *captureMailer
	logs    *bytes.Buffer
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, mutate ...func(*goGate.Config, *RouterOptions)) *testServer {
	t.Helper()
	ctx := context.Background()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	db, err := bunx.NewDB(ctx, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = bunx.Close(db) })
	_, err = migrations.Up(ctx, db, quietLogger())
	require.NoError(t, err)
	repo := repository.NewBunUserRepository(db)

	cfg := goGate.DefaultConfig()
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Session.SecureCookie = false

	var logs bytes.Buffer
	opts := RouterOptions{
		Users:   repo,
		Logger:  slog.New(slog.NewJSONHandler(&logs, nil)),
		BaseURL: "https://blog.test",
	}
	for _, fn := range mutate {
		fn(&cfg, &opts)
	}

	mailer := &captureMailer{}
	engine, err := goGate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(repo).
		WithMailer(mailer).
		WithLogger(quietLogger()).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	opts.Engine = engine
	router, err := NewRouter(opts)
	require.NoError(t, err)

	return &testServer{handler: router, engine: engine, repo: repo, mr: mr, mailer: mailer, logs: &logs}
}

func (s *testServer) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.AddCookie(&http.Cookie{Name: s.engine.CookieName(), Value: token})
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

type signedUp struct {
	ID    string
	Token string
}

func (s *testServer) signUp(t *testing.T, name, email, password string) signedUp {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/sign-up/email", map[string]string{
		"name": name, "email": email, "password": password,
	}, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		User  userDTO `json:"user"`
		Token string  `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	return signedUp{ID: body.User.ID, Token: body.Token}
}

func (s *testServer) admin(t *testing.T) signedUp {
	t.Helper()
	u := s.signUp(t, "Admin", "admin@blog.test", "admin-password")
	_, err := s.engine.SetRole(context.Background(), u.ID, goGate.RoleAdmin)
	require.NoError(t, err)
	return u
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestSignUpAssignsDefaultRole(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/auth/sign-up/email", map[string]string{
		"name":     "Ada",
		"email":    "Ada@Example.com",
		"password": "secret-pass",
		"role":     "admin",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode[authResponse](t, rec)
	assert.Equal(t, "user", body.User.Role)
	assert.Equal(t, "ada@example.com", body.User.Email)
	assert.NotEmpty(t, body.Token)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "gogate.session_token", cookies[0].Name)
	assert.Equal(t, body.Token, cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}

func TestSignUpErrors(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "Ada", "ada@example.com", "secret-pass")

	tests := []struct {
		name   string
		body   any
		status int
		msg    string
	}{
		{"malformed json", `{"name":`, http.StatusBadRequest, msgBadRequest},
		{"trailing data", `{"name":"a"} {}`, http.StatusBadRequest, msgBadRequest},
		{"missing name", map[string]string{"email": "x@example.com", "password": "secret-pass"}, http.StatusBadRequest, msgInvalidSignUp},
		{"bad email", map[string]string{"name": "X", "email": "nope", "password": "secret-pass"}, http.StatusBadRequest, msgInvalidSignUp},
		{"short password", map[string]string{"name": "X", "email": "x@example.com", "password": "12345"}, http.StatusBadRequest, msgPasswordPolicy},
		{"duplicate", map[string]string{"name": "X", "email": "ADA@example.com", "password": "secret-pass"}, http.StatusConflict, msgAccountExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/auth/sign-up/email", tt.body, "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, decode[errorBody](t, rec).Error)
		})
	}
}

func TestSignUpDisabled(t *testing.T) {
	s := newTestServer(t, func(cfg *goGate.Config, _ *RouterOptions) {
		cfg.Account.AllowSignUp = false
	})
	rec := s.do(t, http.MethodPost, "/api/auth/sign-up/email", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "secret-pass",
	}, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, msgSignUpDisabled, decode[errorBody](t, rec).Error)
}

func TestSignInAndSession(t *testing.T) {
	s := newTestServer(t)
	s.signUp(t, "Ada", "ada@example.com", "secret-pass")

	rec := s.do(t, http.MethodPost, "/api/auth/sign-in/email", map[string]string{
		"email": "ada@example.com", "password": "wrong-pass",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, msgBadCredentials, decode[errorBody](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/auth/sign-in/email", map[string]string{
		"email": "ADA@example.com", "password": "secret-pass",
	}, "")
	require.Equal(t, http.StatusOK, rec.Code)
	token := decode[authResponse](t, rec).Token
	require.NotEmpty(t, token)

	rec = s.do(t, http.MethodGet, "/api/auth/get-session", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "null", strings.TrimSpace(rec.Body.String()))

	rec = s.do(t, http.MethodGet, "/api/auth/get-session", nil, token)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[struct {
		Session sessionDTO     `json:"session"`
		User    sessionUserDTO `json:"user"`
	}](t, rec)
	assert.Equal(t, "ada@example.com", got.User.Email)
	assert.Equal(t, "user", got.User.Role)
	assert.Equal(t, got.User.ID, got.Session.UserID)
	assert.True(t, got.Session.ExpiresAt.After(got.Session.CreatedAt))
}

func TestSignInRateLimited(t *testing.T) {
	s := newTestServer(t, func(cfg *goGate.Config, _ *RouterOptions) {
		cfg.Security.MaxSignInAttempts = 2
	})
	s.signUp(t, "Ada", "ada@example.com", "secret-pass")

	bad := map[string]string{"email": "ada@example.com", "password": "wrong-pass"}
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = s.do(t, http.MethodPost, "/api/auth/sign-in/email", bad, "")
	}
	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, msgTooManyAttempts, decode[errorBody](t, last).Error)
}

func TestProfileGate(t *testing.T) {
	s := newTestServer(t)
	u := s.signUp(t, "Ada", "ada@example.com", "secret-pass")

	rec := s.do(t, http.MethodGet, "/api/profile", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"No autenticado"}`, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	rec = s.do(t, http.MethodGet, "/api/profile", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/profile", nil, u.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decode[map[string]sessionUserDTO](t, rec)["profile"]
	assert.Equal(t, u.ID, profile.ID)
	assert.Equal(t, "Ada", profile.Name)
	assert.Equal(t, "user", profile.Role)
	assert.False(t, profile.EmailVerified)

	snap := s.engine.MetricsSnapshot()
	assert.Equal(t, uint64(1), snap.Counters[goGate.MetricGatePermit])
	assert.Equal(t, uint64(2), snap.Counters[goGate.MetricGateUnauthenticated])
}

func TestAdminGate(t *testing.T) {
	s := newTestServer(t)
	user := s.signUp(t, "Ada", "ada@example.com", "secret-pass")
	admin := s.admin(t)

	for _, path := range []string{"/api/admin/stats", "/api/admin/users"} {
		rec := s.do(t, http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)

		rec = s.do(t, http.MethodGet, path, nil, user.Token)
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
		assert.JSONEq(t, `{"error":"No tienes permisos para acceder a este recurso"}`, rec.Body.String())

		rec = s.do(t, http.MethodGet, path, nil, admin.Token)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}

	rec := s.do(t, http.MethodPatch, "/api/admin/users", map[string]string{"userId": user.ID, "role": "admin"}, user.Token)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAdminStatsAndList(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin(t)
	for i := 1; i <= 6; i++ {
		s.signUp(t, fmt.Sprintf("User %d", i), fmt.Sprintf("user%d@example.com", i), "secret-pass")
	}

	rec := s.do(t, http.MethodGet, "/api/admin/stats", nil, admin.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode[struct {
		TotalUsers  int             `json:"totalUsers"`
		RoleStats   map[string]int  `json:"roleStats"`
		RecentUsers []recentUserDTO `json:"recentUsers"`
	}](t, rec)
	assert.Equal(t, 7, stats.TotalUsers)
	assert.Equal(t, map[string]int{"user": 6, "admin": 1}, stats.RoleStats)
	assert.Len(t, stats.RecentUsers, repository.RecentLimit)

	rec = s.do(t, http.MethodGet, "/api/admin/users", nil, admin.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	users := decode[[]userDTO](t, rec)
	assert.Len(t, users, 7)
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestAdminSetRole(t *testing.T) {
	s := newTestServer(t)
	admin := s.admin(t)
	target := s.signUp(t, "Ada", "ada@example.com", "secret-pass")

	tests := []struct {
		name   string
		body   any
		status int
		msg    string
	}{
		{"missing user", map[string]string{"role": "admin"}, http.StatusBadRequest, msgMissingParams},
		{"missing role", map[string]string{"userId": target.ID}, http.StatusBadRequest, msgMissingParams},
		{"unknown role", map[string]string{"userId": target.ID, "role": "superuser"}, http.StatusBadRequest, msgInvalidRole},
		{"padded role", map[string]string{"userId": target.ID, "role": " admin "}, http.StatusBadRequest, msgInvalidRole},
		{"upper case role", map[string]string{"userId": target.ID, "role": "ADMIN"}, http.StatusBadRequest, msgInvalidRole},
		{"unknown user", map[string]string{"userId": "missing", "role": "admin"}, http.StatusNotFound, msgUserNotFound},
		{"malformed", `[]`, http.StatusBadRequest, msgBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPatch, "/api/admin/users", tt.body, admin.Token)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.msg, decode[errorBody](t, rec).Error)
		})
	}

	rec := s.do(t, http.MethodPatch, "/api/admin/users", map[string]string{"userId": target.ID, "role": "moderator"}, admin.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "moderator", decode[userDTO](t, rec).Role)

	// The target's live session carries the new role on its next request.
	rec = s.do(t, http.MethodGet, "/api/profile", nil, target.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "moderator", decode[map[string]sessionUserDTO](t, rec)["profile"].Role)
}

func TestSearchUsers(t *testing.T) {
	s := newTestServer(t)
	me := s.signUp(t, "Caller", "caller@example.com", "secret-pass")
	for i := 1; i <= 7; i++ {
		s.signUp(t, fmt.Sprintf("Juan %d", i), fmt.Sprintf("juan%d@example.com", i), "secret-pass")
	}

	type page struct {
		Users       []userSummaryDTO `json:"users"`
		TotalPages  int              `json:"totalPages"`
		CurrentPage int              `json:"currentPage"`
		TotalUsers  int              `json:"totalUsers"`
	}

	rec := s.do(t, http.MethodGet, "/api/users", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/users", nil, me.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode[page](t, rec)
	assert.Equal(t, 8, p.TotalUsers)
	assert.Equal(t, 2, p.TotalPages)
	assert.Equal(t, 1, p.CurrentPage)
	assert.Len(t, p.Users, repository.UsersPerPage)

	rec = s.do(t, http.MethodGet, "/api/users?query=JUAN&page=2", nil, me.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	p = decode[page](t, rec)
	assert.Equal(t, 7, p.TotalUsers)
	assert.Equal(t, 2, p.CurrentPage)
	assert.Len(t, p.Users, 1)

	rec = s.do(t, http.MethodGet, "/api/users?page=abc", nil, me.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decode[page](t, rec).CurrentPage)
}

func TestSignOut(t *testing.T) {
	s := newTestServer(t)
	u := s.signUp(t, "Ada", "ada@example.com", "secret-pass")

	rec := s.do(t, http.MethodPost, "/api/auth/sign-out", nil, u.Token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true}`, rec.Body.String())
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, -1, cookies[0].MaxAge)

	rec = s.do(t, http.MethodGet, "/api/profile", nil, u.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Signing out without a session still clears the cookie.
	rec = s.do(t, http.MethodPost, "/api/auth/sign-out", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBackendFailureIsNotUnauthenticated(t *testing.T) {
	s := newTestServer(t, func(cfg *goGate.Config, _ *RouterOptions) {
		cfg.Session.CookieCacheEnabled = false
	})
	u := s.signUp(t, "Ada", "ada@example.com", "secret-pass")

	s.mr.SetError("ERR server unavailable")

	rec := s.do(t, http.MethodGet, "/api/profile", nil, u.Token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Error de autenticación"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "redis")

	rec = s.do(t, http.MethodGet, "/api/auth/get-session", nil, u.Token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	assert.Equal(t, uint64(1), s.engine.MetricsSnapshot().Counters[goGate.MetricGateBackendFailure])
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t)
	u := s.signUp(t, "Ada", "ada@example.com", "secret-pass")

	rec := s.do(t, http.MethodPost, "/api/auth/forget-password", map[string]string{
		"email": "nobody@example.com", "redirectTo": "/auth/reset-password",
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":true}`, rec.Body.String())
	assert.Empty(t, s.mailer.messages())

	rec = s.do(t, http.MethodPost, "/api/auth/forget-password", map[string]string{
		"email": "ada@example.com", "redirectTo": "https://evil.test/steal",
	}, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	msgs := s.mailer.messages()
	require.Len(t, msgs, 1)

	link, err := url.Parse(msgs[0].URL)
	require.NoError(t, err)
	assert.Equal(t, "blog.test", link.Host)
	assert.Equal(t, defaultResetPath, link.Path)
	token := link.Query().Get("token")
	require.Equal(t, msgs[0].Token, token)

	rec = s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgMissingParams, decode[errorBody](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "newPassword": "123"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgPasswordPolicy, decode[errorBody](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "newPassword": "brand-new-pass"}, "")
	require.Equal(t, http.StatusOK, rec.Code)

	// Existing sessions are revoked and the old password no longer works.
	rec = s.do(t, http.MethodGet, "/api/profile", nil, u.Token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/sign-in/email", map[string]string{"email": "ada@example.com", "password": "secret-pass"}, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = s.do(t, http.MethodPost, "/api/auth/sign-in/email", map[string]string{"email": "ada@example.com", "password": "brand-new-pass"}, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/auth/reset-password", map[string]string{"token": token, "newPassword": "another-pass"}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, msgInvalidToken, decode[errorBody](t, rec).Error)
}

func TestResetRedirect(t *testing.T) {
	base, err := url.Parse("https://blog.test/app/")
	require.NoError(t, err)
	h := &handlers{base: base}
	bare := &handlers{}

	tests := []struct {
		name string
		h    *handlers
		in   string
		want string
	}{
		{"empty", h, "", "https://blog.test/auth/reset-password"},
		{"relative", h, "/auth/reset-password?lang=es", "https://blog.test/auth/reset-password?lang=es"},
		{"same origin", h, "https://blog.test/reset", "https://blog.test/reset"},
		{"other host", h, "https://evil.test/reset", "https://blog.test/auth/reset-password"},
		{"scheme downgrade", h, "http://blog.test/reset", "https://blog.test/auth/reset-password"},
		{"protocol relative", h, "//evil.test/reset", "https://blog.test/auth/reset-password"},
		{"no base relative", bare, "/reset", "/reset"},
		{"no base absolute", bare, "https://evil.test/reset", defaultResetPath},
		{"no base protocol relative", bare, "//evil.test", defaultResetPath},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.h.resetRedirect(tt.in))
		})
	}
}

func TestHealthAndMetrics(t *testing.T) {
	var healthy = true
	s := newTestServer(t, func(_ *goGate.Config, opts *RouterOptions) {
		opts.Metrics = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "gogate_gate_permit_total 0\n")
		})
		opts.HealthChecks = map[string]HealthCheck{
			"db": func(context.Context) error {
				if healthy {
					return nil
				}
				return fmt.Errorf("down")
			},
		}
	})

	rec := s.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	healthy = false
	rec = s.do(t, http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"db":"unavailable"}}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gogate_gate_permit_total")
}

func TestCORS(t *testing.T) {
	s := newTestServer(t, func(_ *goGate.Config, opts *RouterOptions) {
		cors := DefaultCORSOptions([]string{"https://blog.test"})
		opts.CORSOptions = &cors
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/profile", nil)
	req.Header.Set("Origin", "https://blog.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "https://blog.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
}

func TestRequestLoggerLevels(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodGet, "/healthz", nil, "")
	s.do(t, http.MethodGet, "/api/profile", nil, "")

	lines := strings.Split(strings.TrimSpace(s.logs.String()), "\n")
	var entries []map[string]any
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry["msg"] == "http request" {
			entries = append(entries, entry)
		}
	}
	require.Len(t, entries, 2)
	assert.Equal(t, "INFO", entries[0]["level"])
	assert.Equal(t, float64(http.StatusOK), entries[0]["status"])
	assert.Equal(t, "WARN", entries[1]["level"])
	assert.Equal(t, float64(http.StatusUnauthorized), entries[1]["status"])
	assert.NotEmpty(t, entries[1]["request_id"])
}

func TestClientInfo(t *testing.T) {
	var gotIP string
	h := ClientInfo(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotIP = goGate.ClientIPFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4567"
	h.ServeHTTP(httptest.NewRecorder(), req)
	assert.Equal(t, "203.0.113.9", gotIP)
}

func TestNewRouterValidation(t *testing.T) {
	_, err := NewRouter(RouterOptions{})
	assert.ErrorContains(t, err, "engine required")

	s := newTestServer(t)
	_, err = NewRouter(RouterOptions{Engine: s.engine})
	assert.ErrorContains(t, err, "user directory required")

	_, err = NewRouter(RouterOptions{Engine: s.engine, Users: s.repo, BaseURL: "not a url"})
	assert.ErrorContains(t, err, "invalid base URL")
}
