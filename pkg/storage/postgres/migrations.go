package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/platinummonkey/larder/pkg/observability"
)

// Migration is a single forward-only schema change
type Migration struct {
	Version    int
	Name       string
	Statements []string
}

// Migrations is the ordered schema history
var Migrations = []Migration{
	{
		Version: 1,
		Name:    "users",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS users (
				id BIGSERIAL PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				full_name TEXT NOT NULL DEFAULT '',
				avatar_url TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_users_full_name_lower ON users (LOWER(full_name))`,
		},
	},
	{
		Version: 2,
		Name:    "cookbooks_and_recipes",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS cookbooks (
				id BIGSERIAL PRIMARY KEY,
				title TEXT NOT NULL,
				is_public BOOLEAN NOT NULL DEFAULT FALSE,
				image TEXT,
				created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS recipes (
				id BIGSERIAL PRIMARY KEY,
				title TEXT NOT NULL,
				description TEXT,
				servings TEXT,
				notes TEXT,
				prep_time INTEGER,
				cook_time INTEGER,
				nutrients JSONB,
				cuisine TEXT,
				language TEXT,
				difficulty TEXT,
				rating DOUBLE PRECISION,
				ingredients JSONB,
				instructions JSONB,
				image TEXT,
				is_public BOOLEAN NOT NULL DEFAULT FALSE,
				created_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS cookbook_recipes (
				cookbook_id BIGINT NOT NULL REFERENCES cookbooks(id) ON DELETE CASCADE,
				recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
				added_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (cookbook_id, recipe_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_cookbook_recipes_recipe ON cookbook_recipes (recipe_id)`,
		},
	},
	{
		Version: 3,
		Name:    "memberships",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS users_on_cookbooks (
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				cookbook_id BIGINT NOT NULL REFERENCES cookbooks(id) ON DELETE CASCADE,
				role TEXT NOT NULL CHECK (role IN ('OWNER', 'EDITOR', 'VIEWER')),
				added_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
				added_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (user_id, cookbook_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_users_on_cookbooks_cookbook ON users_on_cookbooks (cookbook_id)`,
			`CREATE TABLE IF NOT EXISTS users_on_recipes (
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				recipe_id BIGINT NOT NULL REFERENCES recipes(id) ON DELETE CASCADE,
				role TEXT NOT NULL CHECK (role IN ('OWNER', 'EDITOR', 'VIEWER')),
				added_by BIGINT REFERENCES users(id) ON DELETE SET NULL,
				added_at TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (user_id, recipe_id)
			)`,
			`CREATE INDEX IF NOT EXISTS idx_users_on_recipes_recipe ON users_on_recipes (recipe_id)`,
		},
	},
	{
		Version: 4,
		Name:    "quotas",
		Statements: []string{
			`CREATE TABLE IF NOT EXISTS quotas (
				user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				type TEXT NOT NULL,
				used INTEGER NOT NULL DEFAULT 0,
				quota_limit INTEGER NOT NULL,
				resettable BOOLEAN NOT NULL DEFAULT TRUE,
				reset_frequency TEXT NOT NULL CHECK (reset_frequency IN ('DAILY', 'WEEKLY', 'MONTHLY', 'NONE')),
				last_reset TIMESTAMPTZ NOT NULL,
				PRIMARY KEY (user_id, type)
			)`,
		},
	},
}

// Migrate applies every migration newer than the recorded schema version.
// Each migration runs in its own transaction.
func Migrate(ctx context.Context, db *sql.DB, logger *observability.Logger) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	var current int
	if err := db.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range Migrations {
		if m.Version <= current {
			continue
		}

		err := WithTx(ctx, db, func(tx *sql.Tx) error {
			for _, stmt := range m.Statements {
				if _, err := tx.ExecContext(ctx, stmt); err != nil {
					return err
				}
			}
			_, err := tx.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`,
				m.Version, m.Name, time.Now().UTC())
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", m.Version, m.Name, err)
		}

		logger.WithFields(map[string]interface{}{
			"version": m.Version,
			"name":    m.Name,
		}).Info("Applied migration")
	}

	return nil
}
