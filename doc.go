// Package goGate provides request-scoped authorization gating on top of a
// Redis-backed email/password session service.
//
// The gating core is three pieces: a [SessionResolver] that turns request
// headers into a [Session], the pure role policy [Decide], and the HTTP
// middleware in the middleware sub-package that rejects with a fixed JSON
// body or hands the request to the wrapped handler with the session in its
// context.
//
// [Engine] is the production resolver and also owns the account flows:
// sign-up with a server-assigned role, sign-in, sign-out, role changes and
// password reset. Engine methods are safe to call from multiple goroutines
// after initialization through [Builder.Build].
//
// # Architecture boundaries
//
// goGate is the public surface. It exposes [Engine], [Builder], [Config] and
// value types ([Role], [RoleSet], [Session], [Decision], [MetricsSnapshot]).
// Session encoding, rate limiting, reset tokens and audit dispatch live
// under internal/ or their own sub-packages and are never exposed through
// Engine.
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or encoding details in its public API.
//   - Accept a role from sign-up input.
//   - Import any sub-package that re-imports goGate (no import cycles).
//
// # Performance contract
//
// Resolve is the hot path. With the session cache enabled a repeated
// credential is answered from memory; otherwise it costs one Redis round-trip
// plus an occasional renewal write.
package goGate
