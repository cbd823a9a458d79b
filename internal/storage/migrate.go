package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// migration is one versioned schema step, applied in order on open.
type migration struct {
	version  string
	sqlite   string
	postgres string
}

var migrations = []migration{
	{
		version: "001_sessions",
		sqlite: `CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			mode TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		postgres: `CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			title TEXT NOT NULL,
			mode TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	},
	{
		version: "002_pages",
		sqlite: `CREATE TABLE IF NOT EXISTS pages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			page_number INTEGER NOT NULL,
			media_type TEXT NOT NULL,
			payload BLOB NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`,
		postgres: `CREATE TABLE IF NOT EXISTS pages (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			page_number INTEGER NOT NULL,
			media_type TEXT NOT NULL,
			payload BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	},
	{
		version: "003_messages",
		sqlite: `CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			is_error INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		postgres: `CREATE TABLE IF NOT EXISTS messages (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			is_error BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
	},
	{
		version: "004_assets",
		sqlite: `CREATE TABLE IF NOT EXISTS assets (
			session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			nodes TEXT NOT NULL,
			connections TEXT NOT NULL,
			background BLOB,
			background_media_type TEXT,
			background_prompt TEXT,
			updated_at TIMESTAMP NOT NULL
		)`,
		postgres: `CREATE TABLE IF NOT EXISTS assets (
			session_id UUID PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			nodes JSONB NOT NULL,
			connections JSONB NOT NULL,
			background BYTEA,
			background_media_type TEXT,
			background_prompt TEXT,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	},
	{
		version: "005_workflows",
		sqlite: `CREATE TABLE IF NOT EXISTS workflows (
			session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			graph TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		postgres: `CREATE TABLE IF NOT EXISTS workflows (
			session_id UUID PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			graph JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	},
	{
		version: "006_blueprints",
		sqlite: `CREATE TABLE IF NOT EXISTS blueprints (
			session_id TEXT PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			boxes TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		postgres: `CREATE TABLE IF NOT EXISTS blueprints (
			session_id UUID PRIMARY KEY REFERENCES sessions(id) ON DELETE CASCADE,
			boxes JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	},
	{
		version:  "007_page_index",
		sqlite:   `CREATE INDEX IF NOT EXISTS idx_pages_session ON pages(session_id, page_number)`,
		postgres: `CREATE INDEX IF NOT EXISTS idx_pages_session ON pages(session_id, page_number)`,
	},
}

// Migrate applies all pending schema migrations, recording versions in
// schema_migrations.
func Migrate(ctx context.Context, db *sql.DB, driver string) error {
	if err := ensureSchemaMigrationsTable(ctx, db, driver); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return fmt.Errorf("read applied versions: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}

		stmt := m.sqlite
		if driver == "postgres" {
			stmt = m.postgres
		}

		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply %s: %w", m.version, err)
		}
		if _, err := db.ExecContext(ctx,
			`INSERT INTO schema_migrations (version) VALUES ($1)`, m.version); err != nil {
			return fmt.Errorf("record %s: %w", m.version, err)
		}
	}

	return nil
}

func ensureSchemaMigrationsTable(ctx context.Context, db *sql.DB, driver string) error {
	var query string
	switch driver {
	case "sqlite", "":
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)`
	default:
		query = `CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`
	}
	_, err := db.ExecContext(ctx, query)
	return err
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	return applied, nil
}
