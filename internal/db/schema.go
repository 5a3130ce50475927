package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// InitSchema creates the tables the service needs. Every statement is
// IF NOT EXISTS so the call is safe to repeat on every startup.
func InitSchema(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id            BIGSERIAL PRIMARY KEY,
			name          TEXT NOT NULL,
			email         TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS tasks (
			id          BIGSERIAL PRIMARY KEY,
			user_id     BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			title       TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			completed   BOOLEAN NOT NULL DEFAULT FALSE,
			priority    TEXT NOT NULL DEFAULT 'medium'
				CHECK (priority IN ('low','medium','high','urgent')),
			category    TEXT NOT NULL DEFAULT 'other'
				CHECK (category IN ('work','personal','health','finance','education','other')),
			due_date    TIMESTAMPTZ,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_user_created
			ON tasks (user_id, created_at DESC)`,
	}

	for _, stmt := range statements {
		_, err := pool.Exec(ctx, stmt)

		if err != nil {
			return err
		}
	}

	return nil
}
