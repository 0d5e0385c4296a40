// Package mail renders password reset messages and hands them to a
// structured logger. It is the delivery used by the gogate binary; an SMTP
// transport can replace it behind the same [goGate.Mailer] interface.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"

	goGate "github.com/MrEthical07/goGate"
)

// Subject of every reset message.
const Subject = "Recuperación de Contraseña"

var resetBody = template.Must(template.New("reset").Parse(`Recuperación de Contraseña

Hola{{ if .Name }} {{ .Name }}{{ end }},

Recibimos una solicitud para restablecer la contraseña de tu cuenta.

Haz clic en el siguiente enlace para crear una nueva contraseña:
{{ .URL }}

Este enlace expirará en {{ .Expiry }}.

Si no solicitaste este cambio, puedes ignorar este correo de forma segura.
`))

// Message is a rendered reset email.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Render builds the reset email for msg. now is used to express the
// remaining lifetime of the link.
func Render(msg goGate.PasswordResetMessage, now time.Time) (Message, error) {
	var buf bytes.Buffer
	err := resetBody.Execute(&buf, struct {
		Name   string
		URL    string
		Expiry string
	}{
		Name:   msg.Name,
		URL:    msg.URL,
		Expiry: humanizeExpiry(msg.ExpiresAt.Sub(now)),
	})
	if err != nil {
		return Message{}, fmt.Errorf("render reset email: %w", err)
	}
	return Message{To: msg.Email, Subject: Subject, Text: buf.String()}, nil
}

func humanizeExpiry(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour < time.Minute:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hora"
		}
		return fmt.Sprintf("%d horas", h)
	case d >= time.Minute:
		m := int((d + 30*time.Second) / time.Minute)
		if m == 1 {
			return "1 minuto"
		}
		return fmt.Sprintf("%d minutos", m)
	default:
		return "menos de un minuto"
	}
}

// LogMailer implements [goGate.Mailer] by logging the rendered message.
// The reset link and body carry a live token, so they are only logged, at
// Warn, when the mailer was built with [WithLinks].
type LogMailer struct {
	logger *slog.Logger
	now    func() time.Time
	links  bool
}

var _ goGate.Mailer = (*LogMailer)(nil)

// Option configures a [LogMailer].
type Option func(*LogMailer)

// WithLinks makes the mailer log the reset link and rendered body. Only
// for local development, where no real mailbox receives them.
func WithLinks() Option {
	return func(m *LogMailer) { m.links = true }
}

// NewLogMailer returns a mailer logging through logger. A nil logger uses
// [slog.Default].
func NewLogMailer(logger *slog.Logger, opts ...Option) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	m := &LogMailer{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SendPasswordReset renders msg and logs its envelope.
func (m *LogMailer) SendPasswordReset(ctx context.Context, msg goGate.PasswordResetMessage) error {
	rendered, err := Render(msg, m.now())
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "password reset email",
		"to", rendered.To,
		"subject", rendered.Subject,
		"user_id", msg.UserID,
		"expires_at", msg.ExpiresAt,
	)
	if m.links {
		m.logger.WarnContext(ctx, "password reset link (dev only)",
			"to", rendered.To,
			"url", msg.URL,
			"body", rendered.Text,
		)
	}
	return nil
}

// ResetLogger returns a hook that logs completed password resets.
func ResetLogger(logger *slog.Logger) goGate.PasswordResetHook {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, user goGate.UserRecord) {
		logger.InfoContext(ctx, "password reset completed", "user_id", user.UserID, "email", user.Email)
	}
}
