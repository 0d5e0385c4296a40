package models

import (
	"time"

	"github.com/uptrace/bun"

	goGate "github.com/MrEthical07/goGate"
)

// User is an account row. Email is stored lower-cased; Role holds the
// text form of a [goGate.Role].
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID            string    `bun:"id,pk"`
	Name          string    `bun:"name,notnull"`
	Email         string    `bun:"email,notnull,unique"`
	EmailVerified bool      `bun:"email_verified,notnull,default:false"`
	PasswordHash  string    `bun:"password_hash,notnull"`
	Role          string    `bun:"role,notnull,default:'user'"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Record converts the row to the engine's view. A role that no longer
// parses is reported as an error rather than silently downgraded.
func (u *User) Record() (goGate.UserRecord, error) {
	role, err := goGate.ParseRole(u.Role)
	if err != nil {
		return goGate.UserRecord{}, err
	}
	return goGate.UserRecord{
		UserID:        u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          role,
		EmailVerified: u.EmailVerified,
		PasswordHash:  u.PasswordHash,
		CreatedAt:     u.CreatedAt,
		UpdatedAt:     u.UpdatedAt,
	}, nil
}

// RoleCount is one row of a per-role aggregate.
type RoleCount struct {
	Role  string `bun:"role"`
	Count int    `bun:"count"`
}
