package goGate

import (
	"context"
	"net/http"
	"strings"
)

// SessionResolver turns inbound request headers into a session.
//
// Resolve returns (nil, nil) when no usable credential is present: absence
// is a normal value, not a failure. A non-nil error means the backing store
// could not answer and must wrap [ErrAuthBackend].
type SessionResolver interface {
	Resolve(ctx context.Context, header http.Header) (*Session, error)
}

// ResolverFunc adapts a plain function to [SessionResolver].
type ResolverFunc func(ctx context.Context, header http.Header) (*Session, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, header http.Header) (*Session, error) {
	return f(ctx, header)
}

// CredentialKind identifies where a credential was found.
type CredentialKind uint8

const (
	// CredentialNone means the request carried no credential.
	CredentialNone CredentialKind = iota
	// CredentialCookie is an opaque session token in the session cookie.
	CredentialCookie
	// CredentialBearer is a signed access token in the Authorization header.
	CredentialBearer
)

// ExtractCredential finds the session credential in header. The session
// cookie wins over a bearer token when both are sent.
func ExtractCredential(header http.Header, cookieName string) (CredentialKind, string) {
	if header == nil {
		return CredentialNone, ""
	}

	if cookieName != "" {
		for _, c := range (&http.Request{Header: header}).Cookies() {
			if c.Name == cookieName && c.Value != "" {
				return CredentialCookie, c.Value
			}
		}
	}

	if token, ok := bearerToken(header.Get("Authorization")); ok {
		return CredentialBearer, token
	}

	return CredentialNone, ""
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
