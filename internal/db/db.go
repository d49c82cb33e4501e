// Package db opens the database shared by the api and the worker:
// Postgres in production, a single sqlite file in development.
package db

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

const defaultURL = "sqlite://data/chancai.db"

// sqlitePragmas go on every sqlite DSN. WAL plus a busy timeout lets
// the api and the worker share one database file.
const sqlitePragmas = "_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"

// Connect opens a sqlx.DB with retry, picking the driver from the DSN
// shape.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*sqlx.DB, error) {
	driver, dsn := resolveDriver(dsn)
	if driver == "sqlite" {
		var err error
		if dsn, err = prepareSQLite(dsn); err != nil {
			return nil, err
		}
	}

	var db *sqlx.DB
	open := func() error {
		var err error
		if db, err = sqlx.Open(driver, dsn); err != nil {
			return err
		}
		tunePool(db, driver)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			return err
		}
		return nil
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = 500 * time.Millisecond
	exp.MaxElapsedTime = 2 * time.Minute
	if driver == "sqlite" {
		// A local file either opens or it never will.
		exp.MaxElapsedTime = 5 * time.Second
	}
	if err := backoff.Retry(open, backoff.WithContext(exp, ctx)); err != nil {
		return nil, fmt.Errorf("connect to db: %w", err)
	}

	logger.Info("connected to database", "driver", driver)
	return db, nil
}

func tunePool(db *sqlx.DB, driver string) {
	if driver == "sqlite" {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		return
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
}

func resolveDriver(dsn string) (driver, normalized string) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = defaultURL
	}
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "pgx", dsn
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "file:"),
		strings.HasSuffix(dsn, ".db"),
		strings.HasSuffix(dsn, ".sqlite"),
		strings.HasSuffix(dsn, ".sqlite3"):
		return "sqlite", dsn
	default:
		// Anything else is assumed to be a pgx keyword/value DSN.
		return "pgx", dsn
	}
}

// prepareSQLite creates the parent directory and appends the shared
// pragmas, unless the caller already set its own.
func prepareSQLite(dsn string) (string, error) {
	path := strings.TrimPrefix(dsn, "file:")
	query := ""
	if before, after, ok := strings.Cut(path, "?"); ok {
		path, query = before, after
	}
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("sqlite database path is required")
	}

	if !strings.EqualFold(path, ":memory:") {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return "", fmt.Errorf("prepare sqlite database dir: %w", err)
			}
		}
	}

	switch {
	case query == "":
		query = sqlitePragmas
	case !strings.Contains(query, "_pragma="):
		query += "&" + sqlitePragmas
	}
	return "file:" + path + "?" + query, nil
}
