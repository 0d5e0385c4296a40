// Package rate provides Redis-backed fixed-window throttles for sign-in and
// password-reset requests.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key prefixes:
//   - gsi: sign-in per-email
//   - gsip: sign-in per-IP
//   - gpr: reset request per-email
//   - gprip: reset request per-IP
//
// # What this package must NOT do
//
//   - Decide what a throttled caller is told; the Engine maps [ErrRateLimited].
//   - Be imported outside the goGate module.
package rate
