// Package storage provides database persistence for Atelier sessions,
// pages, transcripts, canvas assets and workflow graphs.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // postgres driver
	_ "github.com/mattn/go-sqlite3" // sqlite driver
)

// DB represents a database connection interface.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Options configures the database connection.
type Options struct {
	Driver string // sqlite or postgres

	SQLitePath   string
	JournalMode  string
	MaxOpenConns int

	PostgresDSN     string
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open connects to the configured database and applies migrations.
// Both drivers accept $N placeholders, so queries are shared verbatim.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch opts.Driver {
	case "sqlite":
		// Foreign keys are off by default in sqlite; cascade deletes need them.
		dsn := opts.SQLitePath + "?_foreign_keys=on"
		if opts.JournalMode != "" {
			dsn = fmt.Sprintf("%s&_journal_mode=%s", dsn, opts.JournalMode)
		}
		db, err = sql.Open("sqlite3", dsn)
		if err == nil && opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
	case "postgres":
		db, err = sql.Open("postgres", opts.PostgresDSN)
		if err == nil {
			if opts.MaxOpenConns > 0 {
				db.SetMaxOpenConns(opts.MaxOpenConns)
			}
			if opts.MaxIdleConns > 0 {
				db.SetMaxIdleConns(opts.MaxIdleConns)
			}
			if opts.ConnMaxLifetime > 0 {
				db.SetConnMaxLifetime(opts.ConnMaxLifetime)
			}
		}
	default:
		return nil, fmt.Errorf("unknown database driver: %s", opts.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", opts.Driver, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", opts.Driver, err)
	}

	if err := Migrate(ctx, db, opts.Driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}
