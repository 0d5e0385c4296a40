// Package middleware gates HTTP handlers on a resolved session and its role.
//
// # Gates
//
//   - [Gate]: resolve, decide, then reject or delegate.
//   - [RequireRoles]: Gate with only an allowed-role set.
//   - [WithAuth]: Gate applied to one handler.
//
// Every gate is a func(http.Handler) http.Handler, so it composes with any
// router at route registration time.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into resolver and policy calls. It
// does NOT authenticate anything itself: credentials go to a
// goGate.SessionResolver and the decision comes from goGate.Decide.
//
// # What this package must NOT do
//
//   - Parse cookies, tokens or JWTs directly.
//   - Access Redis.
//   - Put error details into response bodies.
package middleware
