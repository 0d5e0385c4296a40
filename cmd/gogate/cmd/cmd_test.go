package cmd

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestUsersCreateAndDBStatus(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "gogate.db")
	t.Setenv("DATABASE_URL", dsn)

	out, err := run(t, "users", "create",
		"--name", "Root",
		"--email", "root@example.com",
		"--password", "root-password",
		"--role", "admin",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "root@example.com")
	assert.Contains(t, out, "with role admin")
	assert.Contains(t, out, "email verified: false")

	_, err = run(t, "users", "create",
		"--name", "Root",
		"--email", "ROOT@example.com",
		"--password", "root-password",
		"--role", "admin",
	)
	assert.ErrorContains(t, err, "already exists")

	_, err = run(t, "users", "create",
		"--name", "X",
		"--email", "x@example.com",
		"--password", "root-password",
		"--role", "owner",
	)
	assert.ErrorContains(t, err, "invalid --role")

	out, err = run(t, "users", "create",
		"--name", "Mod",
		"--email", "mod@example.com",
		"--password", "mod-password",
		"--role", "moderator",
		"--verified",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "with role moderator (email verified: true)")
	require.NoError(t, usersCreateCmd.Flags().Set("verified", "false"))

	out, err = run(t, "db", "status")
	require.NoError(t, err)
	assert.Contains(t, out, "create_users_table: applied (group 1)")
}

func TestFlagOverridesAreValidated(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:"+filepath.Join(t.TempDir(), "gogate.db"))

	_, err := run(t, "--server-addr", "", "db", "status")
	assert.ErrorContains(t, err, "invalid configuration")

	// Reset the persistent flag for later tests.
	require.NoError(t, rootCmd.PersistentFlags().Set("server-addr", "localhost:8080"))
	rootCmd.PersistentFlags().Lookup("server-addr").Changed = false
}

func TestUsersCreateNeedsNoRedis(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:"+filepath.Join(t.TempDir(), "gogate.db"))
	// Nothing listens here; creating a user must not dial it.
	t.Setenv("REDIS_URL", "redis://127.0.0.1:1/0")

	out, err := run(t, "users", "create",
		"--name", "Root",
		"--email", "root@example.com",
		"--password", "root-password",
		"--role", "admin",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "with role admin")
}
