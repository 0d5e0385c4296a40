// Package password implements password hashing and verification with Argon2id defaults
// and a character-length policy.
//
// # Output format
//
// Hashes are encoded in PHC string format:
//
//	$argon2id$v=19$m=<memory>,t=<time>,p=<threads>$<salt>$<hash>
//
// [Argon2.NeedsUpgrade] reports hashes produced with weaker parameters so the
// caller can re-hash on the next successful sign-in.
//
// # What this package must NOT do
//
//   - Store or retrieve passwords. Callers supply plaintext and receive hashes.
//   - Import any other goGate package.
//   - Log plaintext passwords or hash parameters at runtime.
package password
