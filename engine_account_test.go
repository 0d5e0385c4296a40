package goGate

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSignUpAssignsDefaultRole(t *testing.T) {
	e := newTestEngine(t, testConfig())

	res := signUp(t, e, "Ana", "ana@example.com", "secreto-123")
	if res.User.Role != RoleUser {
		t.Fatalf("expected role user, got %s", res.User.Role)
	}
	if res.Session == nil || res.Session.Role != RoleUser {
		t.Fatal("expected an auto sign-in session with the default role")
	}
	if res.User.UserID == "" {
		t.Fatal("expected a generated user id")
	}
	if stored := e.users.hash(res.User.UserID); stored == "" || stored == "secreto-123" {
		t.Fatal("expected an argon2 hash to be stored")
	}
}

func TestSignUpConfiguredDefaultRole(t *testing.T) {
	cfg := testConfig()
	cfg.Account.DefaultRole = RoleModerator
	e := newTestEngine(t, cfg)

	res := signUp(t, e, "Ana", "ana@example.com", "secreto-123")
	if res.User.Role != RoleModerator {
		t.Fatalf("expected role moderator, got %s", res.User.Role)
	}
}

func TestSignUpWithoutAutoSignIn(t *testing.T) {
	cfg := testConfig()
	cfg.Account.AutoSignIn = false
	e := newTestEngine(t, cfg)

	res := signUp(t, e, "Ana", "ana@example.com", "secreto-123")
	if res.Session != nil || res.Token != "" {
		t.Fatal("expected no session when AutoSignIn is off")
	}
	if res.User.PasswordHash != "" {
		t.Fatal("password hash leaked into the result")
	}
}

func TestSignUpRejectsInvalidInput(t *testing.T) {
	e := newTestEngine(t, testConfig())
	ctx := context.Background()

	cases := []struct {
		name string
		req  SignUpRequest
		want error
	}{
		{"empty name", SignUpRequest{Name: "  ", Email: "a@example.com", Password: "secreto-123"}, ErrAccountCreationInvalid},
		{"long name", SignUpRequest{Name: strings.Repeat("n", 129), Email: "a@example.com", Password: "secreto-123"}, ErrAccountCreationInvalid},
		{"empty email", SignUpRequest{Name: "Ana", Email: "", Password: "secreto-123"}, ErrAccountCreationInvalid},
		{"bad email", SignUpRequest{Name: "Ana", Email: "not-an-email", Password: "secreto-123"}, ErrAccountCreationInvalid},
		{"display-name email", SignUpRequest{Name: "Ana", Email: "Ana <a@example.com>", Password: "secreto-123"}, ErrAccountCreationInvalid},
		{"short password", SignUpRequest{Name: "Ana", Email: "a@example.com", Password: "12345"}, ErrPasswordPolicy},
		{"long password", SignUpRequest{Name: "Ana", Email: "a@example.com", Password: strings.Repeat("p", 129)}, ErrPasswordPolicy},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.SignUp(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSignUpPasswordBoundaries(t *testing.T) {
	e := newTestEngine(t, testConfig())

	signUp(t, e, "Min", "min@example.com", "123456")
	signUp(t, e, "Max", "max@example.com", strings.Repeat("p", 128))
}

func TestSignUpDuplicateEmail(t *testing.T) {
	e := newTestEngine(t, testConfig())
	signUp(t, e, "Ana", "ana@example.com", "secreto-123")

	_, err := e.SignUp(context.Background(), SignUpRequest{Name: "Otra", Email: "ANA@example.com", Password: "secreto-456"})
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("expected ErrAccountExists, got %v", err)
	}
	if got := e.MetricsSnapshot().Counters[MetricSignUpDuplicate]; got != 1 {
		t.Fatalf("expected one duplicate sign-up, got %d", got)
	}
}

func TestSignUpDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.Account.AllowSignUp = false
	e := newTestEngine(t, cfg)

	_, err := e.SignUp(context.Background(), SignUpRequest{Name: "Ana", Email: "ana@example.com", Password: "secreto-123"})
	if !errors.Is(err, ErrAccountCreationDisabled) {
		t.Fatalf("expected ErrAccountCreationDisabled, got %v", err)
	}
}

func TestSetRoleRewritesLiveSessions(t *testing.T) {
	e := newTestEngine(t, testConfig())
	ctx := context.Background()

	res := signUp(t, e, "Ana", "ana@example.com", "secreto-123")

	// Warm the cache so the rewrite has something to purge.
	if sess, err := e.ResolveToken(ctx, res.Token); err != nil || sess.Role != RoleUser {
		t.Fatalf("ResolveToken failed: %v %v", sess, err)
	}

	updated, err := e.SetRole(ctx, res.User.UserID, RoleAdmin)
	if err != nil {
		t.Fatalf("SetRole failed: %v", err)
	}
	if updated.Role != RoleAdmin || updated.PasswordHash != "" {
		t.Fatalf("unexpected updated user: %+v", updated)
	}

	sess, err := e.ResolveToken(ctx, res.Token)
	if err != nil || sess == nil {
		t.Fatalf("ResolveToken after SetRole failed: %v %v", sess, err)
	}
	if sess.Role != RoleAdmin {
		t.Fatalf("expected the live session to carry the new role, got %s", sess.Role)
	}
	if e.cache.len() != 1 {
		t.Fatalf("expected the re-read session to be cached again, got %d entries", e.cache.len())
	}
}

func TestSetRoleValidation(t *testing.T) {
	e := newTestEngine(t, testConfig())
	ctx := context.Background()
	res := signUp(t, e, "Ana", "ana@example.com", "secreto-123")

	if _, err := e.SetRole(ctx, res.User.UserID, RoleUnknown); !errors.Is(err, ErrRoleInvalid) {
		t.Fatalf("expected ErrRoleInvalid, got %v", err)
	}
	if _, err := e.SetRole(ctx, res.User.UserID, Role(42)); !errors.Is(err, ErrRoleInvalid) {
		t.Fatalf("expected ErrRoleInvalid for out-of-range role, got %v", err)
	}
	if _, err := e.SetRole(ctx, "missing", RoleAdmin); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
