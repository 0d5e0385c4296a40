package session

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

const (
	sessionFormatVersionCurrent = 1

	flagEmailVerified byte = 1 << 0
)

// Encode serializes s into the current binary session format.
func Encode(s *Session) ([]byte, error) {
	if s == nil {
		return nil, errors.New("nil session")
	}

	var buf bytes.Buffer
	buf.Grow(1 + 1 + len(s.UserID) + 2 + len(s.DisplayName) + 1 + len(s.Email) + 2 + 32 + 24)

	buf.WriteByte(sessionFormatVersionCurrent)

	if len(s.UserID) > math.MaxUint8 {
		return nil, errors.New("userID too long")
	}
	buf.WriteByte(byte(len(s.UserID)))
	buf.WriteString(s.UserID)

	if len(s.DisplayName) > math.MaxUint16 {
		return nil, errors.New("display name too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(s.DisplayName))); err != nil {
		return nil, err
	}
	buf.WriteString(s.DisplayName)

	if len(s.Email) > math.MaxUint8 {
		return nil, errors.New("email too long")
	}
	buf.WriteByte(byte(len(s.Email)))
	buf.WriteString(s.Email)

	buf.WriteByte(s.Role)

	var flags byte
	if s.EmailVerified {
		flags |= flagEmailVerified
	}
	buf.WriteByte(flags)

	buf.Write(s.SecretHash[:])

	for _, v := range [...]int64{s.CreatedAt, s.UpdatedAt, s.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// Decode parses a binary session record produced by [Encode]. SessionID is
// not part of the record and is left empty.
func Decode(data []byte) (*Session, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != sessionFormatVersionCurrent {
		return nil, errors.New("invalid session version")
	}

	s := &Session{}

	userLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	userID := make([]byte, userLen)
	if _, err := io.ReadFull(reader, userID); err != nil {
		return nil, err
	}
	s.UserID = string(userID)

	var nameLen uint16
	if err := binary.Read(reader, binary.BigEndian, &nameLen); err != nil {
		return nil, err
	}
	if int(nameLen) > reader.Len() {
		return nil, io.ErrUnexpectedEOF
	}
	name := make([]byte, nameLen)
	if _, err := io.ReadFull(reader, name); err != nil {
		return nil, err
	}
	s.DisplayName = string(name)

	emailLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	email := make([]byte, emailLen)
	if _, err := io.ReadFull(reader, email); err != nil {
		return nil, err
	}
	s.Email = string(email)

	if s.Role, err = reader.ReadByte(); err != nil {
		return nil, err
	}

	flags, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if flags&^flagEmailVerified != 0 {
		return nil, errors.New("unknown session flags")
	}
	s.EmailVerified = flags&flagEmailVerified != 0

	if _, err := io.ReadFull(reader, s.SecretHash[:]); err != nil {
		return nil, err
	}

	for _, dst := range [...]*int64{&s.CreatedAt, &s.UpdatedAt, &s.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}

	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in session record")
	}

	return s, nil
}
