// Package stores provides Redis-backed, short-lived record stores for
// password reset.
//
// # Design
//
// Each record is a versioned binary blob in Redis with a TTL. Consume uses
// WATCH/MULTI optimistic transactions with retry on contention. Records are
// single-use: deleted on success, and deleted once the attempt limit is spent.
// Secret comparisons use constant-time compare.
//
// # What this package must NOT do
//
//   - Import goGate or any sibling internal package.
//   - Log or expose plaintext secrets.
//   - Use non-constant-time comparisons for secret matching.
package stores
