// Package repository persists documents, extraction jobs, and results.
//
// It speaks plain database/sql so the same queries run on PostgreSQL (pgx
// stdlib adapter, the production path) and on SQLite (modernc, used for
// single-binary setups and tests). Timestamps are stored as RFC 3339 text
// and hashes as hex so both dialects round-trip them unchanged.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

type Config struct {
	Driver           string // "postgres" | "sqlite"
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB wraps the sql handle together with the pgx pool when one exists.
type DB struct {
	SQL    *sql.DB
	pool   *pgxpool.Pool
	driver string
}

// Open connects according to cfg. For postgres a pgx pool is created and
// wrapped as *sql.DB; for sqlite the DSN is passed to the modernc driver
// directly (":memory:" works).
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch cfg.Driver {
	case "", "sqlite":
		dsn := cfg.DSN
		if dsn == "" {
			dsn = ":memory:"
		}
		logger.Info("opening sqlite database", "dsn", dsn)
		db, err := sql.Open("sqlite", dsn)
		if err != nil {
			logger.Error("failed to open sqlite database", "error", err)
			return nil, err
		}
		// modernc sqlite serializes writes; a single conn avoids SQLITE_BUSY.
		db.SetMaxOpenConns(1)
		return &DB{SQL: db, driver: "sqlite"}, nil

	case "postgres":
		logger.Info("connecting to database", "driver", cfg.Driver)
		pc, err := pgxpool.ParseConfig(cfg.DSN)
		if err != nil {
			logger.Error("failed to parse database dsn", "error", err)
			return nil, err
		}
		if cfg.MaxConns > 0 {
			pc.MaxConns = cfg.MaxConns
		}
		if cfg.MinConns > 0 {
			pc.MinConns = cfg.MinConns
		}
		if cfg.MaxConnLifetime > 0 {
			pc.MaxConnLifetime = cfg.MaxConnLifetime
		}
		if cfg.MaxConnIdleTime > 0 {
			pc.MaxConnIdleTime = cfg.MaxConnIdleTime
		}
		pc.ConnConfig.RuntimeParams["application_name"] = "docent"
		if cfg.StatementTimeout > 0 {
			pc.ConnConfig.RuntimeParams["statement_timeout"] = cfg.StatementTimeout.String()
		}

		dialCtx := ctx
		if cfg.DialTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
			defer cancel()
		}
		pool, err := pgxpool.NewWithConfig(dialCtx, pc)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			return nil, err
		}

		logger.Info("successfully connected to database")
		return &DB{SQL: stdlib.OpenDBFromPool(pool), pool: pool, driver: "postgres"}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// Close closes the database connections gracefully.
func (d *DB) Close(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("closing database connections")
	if d.SQL != nil {
		if err := d.SQL.Close(); err != nil {
			logger.Error("failed to close sql handle", "error", err)
		}
	}
	if d.pool != nil {
		d.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the database to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if d.pool != nil {
		return d.pool.Ping(ctx)
	}
	return d.SQL.PingContext(ctx)
}

// Migrate applies the schema. Statements are dialect-neutral and idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := d.SQL.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id           TEXT PRIMARY KEY,
	source_path  TEXT NOT NULL,
	filename     TEXT NOT NULL,
	file_ext     TEXT NOT NULL,
	file_size    BIGINT NOT NULL,
	content_hash TEXT NOT NULL UNIQUE,
	uploaded_at  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS jobs (
	id           TEXT PRIMARY KEY,
	document_id  TEXT NOT NULL REFERENCES documents(id),
	mode         TEXT NOT NULL,
	status       TEXT NOT NULL,
	text_content TEXT NOT NULL DEFAULT '',
	language     TEXT NOT NULL DEFAULT '',
	error        TEXT NOT NULL DEFAULT '',
	needs_review INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL,
	started_at   TEXT NOT NULL DEFAULT '',
	finished_at  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS jobs_document_idx ON jobs (document_id);
CREATE TABLE IF NOT EXISTS results (
	job_id      TEXT PRIMARY KEY REFERENCES jobs(id),
	document_id TEXT NOT NULL,
	language    TEXT NOT NULL DEFAULT '',
	entities    TEXT NOT NULL,
	raw_model   TEXT NOT NULL DEFAULT '',
	created_at  TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS results_document_idx ON results (document_id)
`

// timeFormat is how timestamps are stored; lexical order matches time order.
const timeFormat = time.RFC3339Nano

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
