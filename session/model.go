package session

// Session is the persisted form of a signed-in session.
//
// Role is the raw role code owned by the caller; this package never
// interprets it. SecretHash is the SHA-256 of the secret half of the opaque
// session token.
type Session struct {
	SessionID string
	UserID    string

	DisplayName   string
	Email         string
	Role          uint8
	EmailVerified bool

	SecretHash [32]byte

	CreatedAt int64
	UpdatedAt int64
	ExpiresAt int64
}

// Clone returns a copy of s that shares no mutable state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
