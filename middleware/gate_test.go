package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	goGate "github.com/MrEthical07/goGate"
)

const (
	wantAuthError       = `{"error":"Error de autenticación"}`
	wantUnauthenticated = `{"error":"No autenticado"}`
	wantForbidden       = `{"error":"No tienes permisos para acceder a este recurso"}`
)

type fixedResolver struct {
	sess  *goGate.Session
	err   error
	calls atomic.Int64
}

func (f *fixedResolver) Resolve(context.Context, http.Header) (*goGate.Session, error) {
	f.calls.Add(1)
	return f.sess, f.err
}

type countingHandler struct {
	calls atomic.Int64
	seen  *goGate.Session
}

func (h *countingHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.calls.Add(1)
	h.seen, _ = SessionFromRequest(r)
	w.Header().Set("X-Inner", "yes")
	w.WriteHeader(http.StatusTeapot)
	_, _ = w.Write([]byte("inner body"))
}

type recorderSpy struct {
	mu        sync.Mutex
	decisions []goGate.DecisionKind
	failures  int
}

func (r *recorderSpy) RecordDecision(kind goGate.DecisionKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, kind)
}

func (r *recorderSpy) RecordBackendFailure() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func serve(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	if req == nil {
		req = httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func assertGateResponse(t *testing.T, rec *httptest.ResponseRecorder, status int, body string) {
	t.Helper()
	if rec.Code != status {
		t.Fatalf("expected status %d, got %d", status, rec.Code)
	}
	if got := rec.Body.String(); got != body {
		t.Fatalf("expected body %s, got %s", body, got)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
}

func session(role goGate.Role) *goGate.Session {
	return &goGate.Session{
		SessionID: "s1",
		UserID:    "u1",
		Role:      role,
		ExpiresAt: time.Now().Add(time.Hour),
	}
}

func TestGateNoSessionIsUnauthenticated(t *testing.T) {
	resolver := &fixedResolver{}
	inner := &countingHandler{}
	h := Gate(resolver, Options{Logger: discardLogger()})(inner)

	rec := serve(t, h, nil)

	assertGateResponse(t, rec, http.StatusUnauthorized, wantUnauthenticated)
	if inner.calls.Load() != 0 {
		t.Fatal("inner handler must not run without a session")
	}
}

func TestGateWrongRoleIsForbidden(t *testing.T) {
	resolver := &fixedResolver{sess: session(goGate.RoleUser)}
	inner := &countingHandler{}
	h := Gate(resolver, Options{Roles: goGate.NewRoleSet(goGate.RoleAdmin), Logger: discardLogger()})(inner)

	rec := serve(t, h, nil)

	assertGateResponse(t, rec, http.StatusForbidden, wantForbidden)
	if inner.calls.Load() != 0 {
		t.Fatal("inner handler must not run for a forbidden role")
	}
}

func TestGateAllowedRolePassesThroughOnce(t *testing.T) {
	sess := session(goGate.RoleAdmin)
	resolver := &fixedResolver{sess: sess}
	inner := &countingHandler{}
	h := Gate(resolver, Options{Roles: goGate.NewRoleSet(goGate.RoleAdmin), Logger: discardLogger()})(inner)

	rec := serve(t, h, nil)

	if inner.calls.Load() != 1 {
		t.Fatalf("expected exactly one inner call, got %d", inner.calls.Load())
	}
	if inner.seen != sess {
		t.Fatal("expected the resolved session in the request context")
	}
	if rec.Code != http.StatusTeapot || rec.Body.String() != "inner body" || rec.Header().Get("X-Inner") != "yes" {
		t.Fatalf("inner response was altered: %d %q", rec.Code, rec.Body.String())
	}
}

func TestGateEmptyRolesAdmitsAnyRole(t *testing.T) {
	for _, role := range goGate.AllRoles() {
		resolver := &fixedResolver{sess: session(role)}
		inner := &countingHandler{}
		h := RequireRoles(resolver)(inner)

		rec := serve(t, h, nil)
		if rec.Code != http.StatusTeapot || inner.calls.Load() != 1 {
			t.Fatalf("role %s: expected pass-through, got %d", role, rec.Code)
		}
	}
}

func TestGateResolverErrorIsBackendFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	resolver := &fixedResolver{err: errors.New("dial tcp 10.0.0.7:6379: connection refused")}
	inner := &countingHandler{}
	h := Gate(resolver, Options{Logger: logger})(inner)

	rec := serve(t, h, nil)

	assertGateResponse(t, rec, http.StatusInternalServerError, wantAuthError)
	if inner.calls.Load() != 0 {
		t.Fatal("inner handler must not run on backend failure")
	}
	if !bytes.Contains(logs.Bytes(), []byte("connection refused")) {
		t.Fatalf("expected failure detail in server log, got %q", logs.String())
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("refused")) {
		t.Fatal("failure detail leaked into response body")
	}
}

func TestGateResolverPanicIsBackendFailure(t *testing.T) {
	resolver := goGate.ResolverFunc(func(context.Context, http.Header) (*goGate.Session, error) {
		panic("store exploded")
	})
	inner := &countingHandler{}
	h := Gate(resolver, Options{Logger: discardLogger()})(inner)

	rec := serve(t, h, nil)

	assertGateResponse(t, rec, http.StatusInternalServerError, wantAuthError)
	if inner.calls.Load() != 0 {
		t.Fatal("inner handler must not run after a resolver panic")
	}
}

func TestGateClientCancelIsNotBackendFailure(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	resolver := goGate.ResolverFunc(func(ctx context.Context, _ http.Header) (*goGate.Session, error) {
		<-ctx.Done()
		return nil, fmt.Errorf("%w: %v", goGate.ErrAuthBackend, ctx.Err())
	})
	spy := &recorderSpy{}
	inner := &countingHandler{}
	h := Gate(resolver, Options{Logger: logger, Recorder: spy})(inner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil).WithContext(ctx)
	serve(t, h, req)

	if inner.calls.Load() != 0 {
		t.Fatal("inner handler must not run for a canceled request")
	}
	if spy.failures != 0 || len(spy.decisions) != 0 {
		t.Fatalf("expected no recorded outcome, got failures=%d decisions=%v", spy.failures, spy.decisions)
	}
	if bytes.Contains(logs.Bytes(), []byte("level=ERROR")) {
		t.Fatalf("canceled request must not log an error, got %q", logs.String())
	}
}

func TestGateResolverCanceledErrorWithLiveRequestIsBackendFailure(t *testing.T) {
	resolver := &fixedResolver{err: context.Canceled}
	spy := &recorderSpy{}
	h := Gate(resolver, Options{Logger: discardLogger(), Recorder: spy})(&countingHandler{})

	rec := serve(t, h, nil)

	assertGateResponse(t, rec, http.StatusInternalServerError, wantAuthError)
	if spy.failures != 1 {
		t.Fatalf("expected one backend failure, got %d", spy.failures)
	}
}

func TestGateErrorWinsOverSession(t *testing.T) {
	resolver := &fixedResolver{sess: session(goGate.RoleAdmin), err: goGate.ErrAuthBackend}
	inner := &countingHandler{}
	h := Gate(resolver, Options{Logger: discardLogger()})(inner)

	rec := serve(t, h, nil)
	assertGateResponse(t, rec, http.StatusInternalServerError, wantAuthError)
}

func TestGateNilResolverIsBackendFailure(t *testing.T) {
	inner := &countingHandler{}
	h := Gate(nil, Options{Logger: discardLogger()})(inner)

	rec := serve(t, h, nil)
	assertGateResponse(t, rec, http.StatusInternalServerError, wantAuthError)
}

func TestGateInnerPanicPropagates(t *testing.T) {
	resolver := &fixedResolver{sess: session(goGate.RoleUser)}
	h := Gate(resolver, Options{Logger: discardLogger()})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("handler bug")
	}))

	defer func() {
		if recover() == nil {
			t.Fatal("expected the inner panic to propagate")
		}
	}()
	serve(t, h, nil)
}

func TestGateIsIdempotentAcrossRequests(t *testing.T) {
	resolver := &fixedResolver{sess: session(goGate.RoleModerator)}
	h := Gate(resolver, Options{Roles: goGate.NewRoleSet(goGate.RoleAdmin), Logger: discardLogger()})(&countingHandler{})

	first := serve(t, h, nil)
	second := serve(t, h, nil)
	if first.Code != second.Code || first.Body.String() != second.Body.String() {
		t.Fatalf("decisions differ: %d/%d", first.Code, second.Code)
	}
	if resolver.calls.Load() != 2 {
		t.Fatalf("expected one resolution per request, got %d", resolver.calls.Load())
	}
}

func TestGateRecorderSeesOneOutcomePerRequest(t *testing.T) {
	spy := &recorderSpy{}
	roles := goGate.NewRoleSet(goGate.RoleAdmin)

	cases := []goGate.SessionResolver{
		&fixedResolver{},
		&fixedResolver{sess: session(goGate.RoleUser)},
		&fixedResolver{sess: session(goGate.RoleAdmin)},
		&fixedResolver{err: goGate.ErrAuthBackend},
	}
	for _, resolver := range cases {
		h := Gate(resolver, Options{Roles: roles, Recorder: spy, Logger: discardLogger()})(&countingHandler{})
		serve(t, h, nil)
	}

	want := []goGate.DecisionKind{goGate.DenyUnauthenticated, goGate.DenyForbidden, goGate.Permit}
	if len(spy.decisions) != len(want) {
		t.Fatalf("expected %d decisions, got %v", len(want), spy.decisions)
	}
	for i := range want {
		if spy.decisions[i] != want[i] {
			t.Fatalf("decision %d: expected %s, got %s", i, want[i], spy.decisions[i])
		}
	}
	if spy.failures != 1 {
		t.Fatalf("expected 1 backend failure, got %d", spy.failures)
	}
}

func TestGateConcurrentRequestsAreIndependent(t *testing.T) {
	resolver := goGate.ResolverFunc(func(_ context.Context, header http.Header) (*goGate.Session, error) {
		switch header.Get("X-Role") {
		case "admin":
			return session(goGate.RoleAdmin), nil
		case "user":
			return session(goGate.RoleUser), nil
		default:
			return nil, nil
		}
	})
	h := Gate(resolver, Options{Roles: goGate.NewRoleSet(goGate.RoleAdmin), Logger: discardLogger()})(&countingHandler{})

	want := map[string]int{"admin": http.StatusTeapot, "user": http.StatusForbidden, "": http.StatusUnauthorized}

	var wg sync.WaitGroup
	for i := 0; i < 60; i++ {
		role := []string{"admin", "user", ""}[i%3]
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("X-Role", role)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != want[role] {
				t.Errorf("role %q: expected %d, got %d", role, want[role], rec.Code)
			}
		}()
	}
	wg.Wait()
}

func TestWithAuthWrapsHandler(t *testing.T) {
	inner := &countingHandler{}
	h := WithAuth(inner, &fixedResolver{sess: session(goGate.RoleUser)}, Options{})

	rec := serve(t, h, nil)
	if rec.Code != http.StatusTeapot || inner.calls.Load() != 1 {
		t.Fatalf("expected pass-through, got %d", rec.Code)
	}
}

func TestSessionFromRequestWithoutGate(t *testing.T) {
	if _, ok := SessionFromRequest(httptest.NewRequest(http.MethodGet, "/", nil)); ok {
		t.Fatal("expected no session on an ungated request")
	}
	if _, ok := SessionFromRequest(nil); ok {
		t.Fatal("expected no session on a nil request")
	}
}

/*
====================================
ENGINE-BACKED GATE
====================================
*/

type memoryUsers struct {
	mu      sync.Mutex
	byID    map[string]goGate.UserRecord
	byEmail map[string]string
}

func newMemoryUsers() *memoryUsers {
	return &memoryUsers{byID: map[string]goGate.UserRecord{}, byEmail: map[string]string{}}
}

func (m *memoryUsers) GetUserByEmail(_ context.Context, email string) (goGate.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return goGate.UserRecord{}, goGate.ErrUserNotFound
	}
	return m.byID[id], nil
}

func (m *memoryUsers) GetUserByID(_ context.Context, userID string) (goGate.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return goGate.UserRecord{}, goGate.ErrUserNotFound
	}
	return u, nil
}

func (m *memoryUsers) CreateUser(_ context.Context, in goGate.CreateUserInput) (goGate.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byEmail[in.Email]; ok {
		return goGate.UserRecord{}, goGate.ErrAccountExists
	}
	u := goGate.UserRecord{
		UserID:       in.UserID,
		Name:         in.Name,
		Email:        in.Email,
		Role:         in.Role,
		PasswordHash: in.PasswordHash,
		CreatedAt:    time.Now(),
	}
	m.byID[u.UserID] = u
	m.byEmail[u.Email] = u.UserID
	return u, nil
}

func (m *memoryUsers) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return goGate.ErrUserNotFound
	}
	u.PasswordHash = hash
	m.byID[userID] = u
	return nil
}

func (m *memoryUsers) UpdateRole(_ context.Context, userID string, role goGate.Role) (goGate.UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.byID[userID]
	if !ok {
		return goGate.UserRecord{}, goGate.ErrUserNotFound
	}
	u.Role = role
	m.byID[userID] = u
	return u, nil
}

func newGateEngine(t *testing.T, rdb redis.UniversalClient) *goGate.Engine {
	t.Helper()

	cfg := goGate.DefaultConfig()
	cfg.PasswordReset.Enabled = false
	cfg.Session.CookieCacheEnabled = false
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := goGate.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(newMemoryUsers()).
		WithLogger(discardLogger()).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	return engine
}

func TestGateWithEngineCookieSession(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	engine := newGateEngine(t, rdb)
	res, err := engine.SignUp(context.Background(), goGate.SignUpRequest{
		Name:     "Ana",
		Email:    "ana@example.com",
		Password: "secreto-123",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}

	inner := &countingHandler{}
	userRoute := Gate(engine, Options{Recorder: engine, Logger: discardLogger()})(inner)
	adminRoute := RequireRoles(engine, goGate.RoleAdmin)(inner)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(engine.SessionCookie(res.Token))
	if rec := serve(t, userRoute, req); rec.Code != http.StatusTeapot {
		t.Fatalf("expected pass-through for a signed-in user, got %d", rec.Code)
	}
	if inner.seen == nil || inner.seen.UserID != res.User.UserID || inner.seen.Role != goGate.RoleUser {
		t.Fatalf("unexpected session in context: %+v", inner.seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/admin/stats", nil)
	req.AddCookie(engine.SessionCookie(res.Token))
	assertGateResponse(t, serve(t, adminRoute, req), http.StatusForbidden, wantForbidden)

	req = httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(engine.SessionCookie("not-a-token"))
	assertGateResponse(t, serve(t, userRoute, req), http.StatusUnauthorized, wantUnauthenticated)

	snap := engine.MetricsSnapshot()
	if snap.Counters[goGate.MetricGatePermit] != 1 || snap.Counters[goGate.MetricGateUnauthenticated] != 1 {
		t.Fatalf("unexpected gate counters: %v", snap.Counters)
	}
}

func TestGateWithEngineRedisDownIsBackendFailure(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()

	engine := newGateEngine(t, rdb)
	res, err := engine.SignUp(context.Background(), goGate.SignUpRequest{
		Name:     "Ana",
		Email:    "ana@example.com",
		Password: "secreto-123",
	})
	if err != nil {
		mr.Close()
		t.Fatalf("SignUp failed: %v", err)
	}

	mr.Close()

	inner := &countingHandler{}
	h := Gate(engine, Options{Logger: discardLogger()})(inner)
	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req.AddCookie(engine.SessionCookie(res.Token))

	assertGateResponse(t, serve(t, h, req), http.StatusInternalServerError, wantAuthError)
	if inner.calls.Load() != 0 {
		t.Fatal("inner handler must not run when the store is down")
	}
}
