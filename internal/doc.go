// Package internal contains helper utilities that are private to goGate:
// opaque token generation and parsing.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - rate: Redis-backed fixed-window throttles
//   - stores: Redis-backed password-reset records
//   - config, db, migrations, repository, server, mail: the gogate service
package internal
