package internal

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

// SessionID is a random 128-bit identifier, rendered base64url without padding.
type SessionID [16]byte

const (
	secretSize   = 32
	tokenRawSize = len(SessionID{}) + secretSize
)

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID

	raw, err := base64.RawURLEncoding.DecodeString(sessionID)
	if err != nil {
		return sid, err
	}
	if len(raw) != len(sid) {
		return sid, errors.New("invalid session id size")
	}

	copy(sid[:], raw)
	return sid, nil
}

func NewSecret() ([secretSize]byte, error) {
	var secret [secretSize]byte
	_, err := rand.Read(secret[:])
	return secret, err
}

func HashSecret(secret [secretSize]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// EncodeToken packs an identifier and a secret into an opaque token:
// base64url(id || secret).
func EncodeToken(id string, secret [secretSize]byte) (string, error) {
	sid, err := ParseSessionID(id)
	if err != nil {
		return "", err
	}

	var raw [tokenRawSize]byte
	copy(raw[:len(sid)], sid[:])
	copy(raw[len(sid):], secret[:])

	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

// DecodeToken is the inverse of EncodeToken.
func DecodeToken(token string) (string, [secretSize]byte, error) {
	var secret [secretSize]byte

	if base64.RawURLEncoding.DecodedLen(len(token)) != tokenRawSize {
		return "", secret, errors.New("invalid token size")
	}
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", secret, err
	}
	if len(raw) != tokenRawSize {
		return "", secret, errors.New("invalid token size")
	}

	var sid SessionID
	copy(sid[:], raw[:len(sid)])
	copy(secret[:], raw[len(sid):])

	return sid.String(), secret, nil
}
