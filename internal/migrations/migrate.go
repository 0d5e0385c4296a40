package migrations

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/migrate"
)

// Up initializes the migration tables and applies every pending migration
// under the migrator lock. It returns the applied group, whose ID is zero
// when nothing was pending.
func Up(ctx context.Context, db *bun.DB, logger *slog.Logger) (*migrate.MigrationGroup, error) {
	if logger == nil {
		logger = slog.Default()
	}
	migrator := migrate.NewMigrator(db, Migrations)

	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	if err := migrator.Lock(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		if err := migrator.Unlock(ctx); err != nil {
			logger.WarnContext(ctx, "failed to release migration lock", "error", err)
		}
	}()

	group, err := migrator.Migrate(ctx)
	if err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	if group.IsZero() {
		logger.InfoContext(ctx, "no new migrations to apply")
	} else {
		logger.InfoContext(ctx, "applied migrations", "group", group.ID, "count", len(group.Migrations))
	}
	return group, nil
}

// Down rolls back the most recent migration group.
func Down(ctx context.Context, db *bun.DB, logger *slog.Logger) (*migrate.MigrationGroup, error) {
	if logger == nil {
		logger = slog.Default()
	}
	migrator := migrate.NewMigrator(db, Migrations)

	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	if err := migrator.Lock(ctx); err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		if err := migrator.Unlock(ctx); err != nil {
			logger.WarnContext(ctx, "failed to release migration lock", "error", err)
		}
	}()

	group, err := migrator.Rollback(ctx)
	if err != nil {
		return nil, fmt.Errorf("rollback failed: %w", err)
	}
	return group, nil
}

// Status lists every known migration with its applied state.
func Status(ctx context.Context, db *bun.DB) (migrate.MigrationSlice, error) {
	migrator := migrate.NewMigrator(db, Migrations)
	if err := migrator.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize migrator: %w", err)
	}
	ms, err := migrator.MigrationsWithStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get migration status: %w", err)
	}
	return ms, nil
}
