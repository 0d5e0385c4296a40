package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/internal/db/bunx"
	"github.com/MrEthical07/goGate/internal/migrations"
	"github.com/MrEthical07/goGate/internal/repository"
)

var (
	nameFlag     string
	emailFlag    string
	passwordFlag string
	roleFlag     string
	stdinFlag    bool
	verifiedFlag bool
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage user accounts",
	Long:  `Commands for managing user accounts directly from the server.`,
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user account with a given role",
	Long: `Creates an account without opening a session and without Redis. This
is how the first admin is bootstrapped, since sign-up always assigns the
default role. --verified marks the email address as already verified.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if emailFlag == "" {
			return fmt.Errorf("--email flag is required")
		}
		if nameFlag == "" {
			return fmt.Errorf("--name flag is required")
		}
		role, err := goGate.ParseRole(roleFlag)
		if err != nil {
			return fmt.Errorf("invalid --role %q (valid roles: user, moderator, admin)", roleFlag)
		}

		password := passwordFlag
		if stdinFlag {
			scanner := bufio.NewScanner(os.Stdin)
			fmt.Fprint(cmd.ErrOrStderr(), "Enter password: ")
			if scanner.Scan() {
				password = strings.TrimRight(scanner.Text(), "\r")
			}
			if err := scanner.Err(); err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
		}
		if password == "" {
			return fmt.Errorf("password is required (use --password or --stdin)")
		}

		ctx := cmd.Context()
		db, err := bunx.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		if _, err := migrations.Up(ctx, db, logger); err != nil {
			return err
		}

		engineCfg, err := cfg.Engine()
		if err != nil {
			return err
		}

		repo := repository.NewBunUserRepository(db)
		provisioner, err := goGate.New().
			WithConfig(engineCfg).
			WithUserStore(repo).
			WithLogger(logger).
			BuildProvisioner()
		if err != nil {
			return fmt.Errorf("failed to build provisioner: %w", err)
		}

		user, err := provisioner.CreateUser(ctx, goGate.SignUpRequest{
			Name:     nameFlag,
			Email:    emailFlag,
			Password: password,
		}, role)
		switch {
		case errors.Is(err, goGate.ErrAccountExists):
			return fmt.Errorf("user with email %s already exists", emailFlag)
		case err != nil:
			return fmt.Errorf("failed to create user: %w", err)
		}

		if verifiedFlag {
			if err := repo.MarkEmailVerified(ctx, user.UserID); err != nil {
				return fmt.Errorf("failed to mark email verified: %w", err)
			}
			user.EmailVerified = true
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Created user %s (%s) with role %s (email verified: %t)\n",
			user.UserID, user.Email, user.Role, user.EmailVerified)
		return nil
	},
}

func init() {
	usersCreateCmd.Flags().StringVar(&nameFlag, "name", "", "Display name of the user")
	usersCreateCmd.Flags().StringVar(&emailFlag, "email", "", "Email address of the user")
	usersCreateCmd.Flags().StringVar(&passwordFlag, "password", "", "Password for the user (use --stdin to avoid shell history)")
	usersCreateCmd.Flags().StringVar(&roleFlag, "role", goGate.DefaultRole.String(), "Role to assign: user, moderator or admin")
	usersCreateCmd.Flags().BoolVar(&stdinFlag, "stdin", false, "Read password from stdin instead of --password flag")
	usersCreateCmd.Flags().BoolVar(&verifiedFlag, "verified", false, "Mark the email address as verified")

	usersCmd.AddCommand(usersCreateCmd)
	rootCmd.AddCommand(usersCmd)
}
