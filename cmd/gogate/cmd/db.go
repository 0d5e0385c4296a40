package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goGate/internal/db/bunx"
	"github.com/MrEthical07/goGate/internal/migrations"
)

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database management commands",
	Long:  `Commands for managing database migrations and schema.`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	Long:  `Applies all pending migrations to the database with locking to prevent concurrent migrations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := bunx.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		if _, err := migrations.Up(ctx, db, logger); err != nil {
			return err
		}
		return nil
	},
}

var dbStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration status",
	Long:  `Displays the current migration status and pending migrations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := bunx.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		ms, err := migrations.Status(ctx, db)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Migrations:")
		for _, m := range ms {
			status := "pending"
			if m.GroupID > 0 {
				status = fmt.Sprintf("applied (group %d)", m.GroupID)
			}
			fmt.Fprintf(out, "  %s %s: %s\n", m.Name, m.Comment, status)
		}
		return nil
	},
}

var dbRollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Rollback last migration group",
	Long:  `Rolls back the most recently applied migration group with locking to prevent concurrent operations.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := bunx.NewDB(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer bunx.Close(db)

		group, err := migrations.Down(ctx, db, logger)
		if err != nil {
			return err
		}
		if group.IsZero() {
			logger.InfoContext(ctx, "no migrations to rollback")
		} else {
			logger.InfoContext(ctx, "rolled back migration group", "group", group.ID)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dbCmd)
	dbCmd.AddCommand(dbMigrateCmd)
	dbCmd.AddCommand(dbStatusCmd)
	dbCmd.AddCommand(dbRollbackCmd)
}
