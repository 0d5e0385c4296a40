package goGate

import (
	"context"
	"io"
	"log/slog"
	"time"

	internalaudit "github.com/MrEthical07/goGate/internal/audit"
)

// UserRecord is the account row as seen by the Engine.
type UserRecord struct {
	UserID        string
	Name          string
	Email         string
	Role          Role
	EmailVerified bool
	PasswordHash  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CreateUserInput is the input for [UserStore.CreateUser]. The Engine
// assigns UserID and Role; callers of sign-up never choose either.
type CreateUserInput struct {
	UserID       string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
}

// UserStore is the persistence contract the Engine needs. Implementations
// return [ErrUserNotFound] for unknown users and [ErrAccountExists] when
// CreateUser hits a duplicate email. Emails arrive already normalized to
// lower case.
type UserStore interface {
	GetUserByEmail(ctx context.Context, email string) (UserRecord, error)
	GetUserByID(ctx context.Context, userID string) (UserRecord, error)
	CreateUser(ctx context.Context, input CreateUserInput) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error
	UpdateRole(ctx context.Context, userID string, role Role) (UserRecord, error)
}

// SignUpRequest is the input for [Engine.SignUp]. There is deliberately no
// Role field.
type SignUpRequest struct {
	Name     string
	Email    string
	Password string
}

// AuthResult is returned by [Engine.SignUp] and [Engine.SignIn].
//
// Token is the opaque session token to place in the session cookie.
// AccessToken is set only when JWT access tokens are enabled.
type AuthResult struct {
	User            UserRecord
	Session         *Session
	Token           string
	AccessToken     string
	AccessExpiresAt time.Time
}

// PasswordResetMessage is handed to [Mailer.SendPasswordReset].
type PasswordResetMessage struct {
	UserID    string
	Email     string
	Name      string
	Token     string
	URL       string
	ExpiresAt time.Time
}

// Mailer delivers password reset links. The Engine never sends mail itself.
type Mailer interface {
	SendPasswordReset(ctx context.Context, msg PasswordResetMessage) error
}

// PasswordResetHook runs after a password reset was committed and every
// session of the user was revoked.
type PasswordResetHook func(ctx context.Context, user UserRecord)

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// SlogSink is an [AuditSink] that logs each event through a [slog.Logger].
type SlogSink = internalaudit.SlogSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// NewSlogSink creates a [SlogSink]. A nil logger uses [slog.Default].
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return internalaudit.NewSlogSink(logger)
}
