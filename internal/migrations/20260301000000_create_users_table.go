package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/MrEthical07/goGate/internal/db/models"
)

func init() {
	Migrations.MustRegister(up_20260301000000, down_20260301000000)
}

// up_20260301000000 creates the users table and its lookup indexes
func up_20260301000000(ctx context.Context, db *bun.DB) error {
	_, err := db.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_users_role ON users(role)`,
		`CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at)`,
	}
	for _, stmt := range indexes {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create users index: %w", err)
		}
	}

	if IsPostgreSQL(db) {
		_, err = db.ExecContext(ctx, `
			ALTER TABLE users
			ADD CONSTRAINT chk_users_role CHECK (role IN ('user', 'moderator', 'admin'))
		`)
		if err != nil {
			return fmt.Errorf("failed to add users role check: %w", err)
		}
	}

	return nil
}

// down_20260301000000 drops the users table
func down_20260301000000(ctx context.Context, db *bun.DB) error {
	_, err := db.NewDropTable().
		Model((*models.User)(nil)).
		IfExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to drop users table: %w", err)
	}
	return nil
}
