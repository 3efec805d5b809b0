package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"collabdeck/config"
	"collabdeck/pkg/logger"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS presentations (
	id          TEXT PRIMARY KEY,
	title       TEXT NOT NULL,
	creator_id  TEXT NOT NULL,
	team_id     TEXT,
	data        JSONB NOT NULL,
	version     BIGINT NOT NULL DEFAULT 1,
	deleted     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS presentations_creator_idx ON presentations (creator_id);

CREATE TABLE IF NOT EXISTS activities (
	id          TEXT PRIMARY KEY,
	scope       TEXT NOT NULL,
	scope_id    TEXT NOT NULL,
	actor_id    TEXT NOT NULL,
	action_type TEXT NOT NULL,
	target_id   TEXT,
	details     JSONB,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS activities_scope_idx ON activities (scope, scope_id, created_at DESC);
`

// Connect opens the Postgres pool and pings it, retrying a few times in case
// of temporary DNS/network blips.
func Connect(cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for i := 0; i < 5; i++ {
		if err = db.Ping(); err == nil {
			logger.Sugar.Info("Successfully connected to the database")
			return db, nil
		}
		logger.Sugar.Infof("Database connection failed, retrying in 2s... (%v)", err)
		time.Sleep(2 * time.Second)
	}
	db.Close()
	return nil, fmt.Errorf("could not connect to database after retries: %w", err)
}

// EnsureSchema creates the tables the service writes to when they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
