// Package session provides Redis-backed session persistence and compact binary session
// encoding for the request-gating hot path.
//
// # Binary encoding
//
// Sessions are stored in Redis as a compact, versioned binary record. The
// encoder is append-only: new versions add fields but never reinterpret old
// ones.
//
// # Sliding renewal
//
// A session lives for ExpiresIn from its last renewal. [Store.Get] renews it
// once UpdateAge has passed since the previous renewal, so an active user is
// written to at most once per UpdateAge.
//
// # What this package must NOT do
//
//   - Import goGate, jwt, or middleware (no upward imports).
//   - Perform application-level authorization decisions.
//   - Store plaintext secrets in [Session] fields.
package session
