// Package jwt issues and verifies bearer access tokens that reference a
// server-side session by ID.
package jwt
