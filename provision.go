package goGate

import (
	"context"

	"github.com/MrEthical07/goGate/password"
)

// Provisioner creates accounts with an explicit role. It needs only a
// [UserStore]: no session is opened and no Redis is involved, which makes it
// the tool for bootstrapping the first admin. Build one with
// [Builder.BuildProvisioner].
type Provisioner struct {
	users  UserStore
	hasher *password.Argon2
}

// CreateUser validates req with the same rules as [Engine.SignUp] and
// stores the account with role. The returned record carries no password
// hash.
func (p *Provisioner) CreateUser(ctx context.Context, req SignUpRequest, role Role) (UserRecord, error) {
	if p == nil || p.users == nil || p.hasher == nil {
		return UserRecord{}, ErrEngineNotReady
	}

	user, err := createAccount(ctx, p.users, p.hasher, req, role)
	if err != nil {
		return UserRecord{}, err
	}
	user.PasswordHash = ""
	return user, nil
}
