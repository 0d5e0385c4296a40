package goGate

import "time"

// Session is the resolved identity attached to a single request. It is
// built by a [SessionResolver] and never mutated afterwards.
type Session struct {
	SessionID     string
	UserID        string
	DisplayName   string
	Email         string
	Role          Role
	EmailVerified bool
	CreatedAt     time.Time
	ExpiresAt     time.Time
}

// Expired reports whether the session has passed its expiry at now.
func (s *Session) Expired(now time.Time) bool {
	if s == nil {
		return true
	}
	return !now.Before(s.ExpiresAt)
}
