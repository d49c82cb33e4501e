package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

func New(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// DB exposes the handle for readiness pings.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// EnsureSchema creates the tables on startup when they do not exist yet.
// The id column syntax differs between the two supported drivers, the
// rest of the DDL is shared.
func (s *Store) EnsureSchema(ctx context.Context) error {
	userID := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.db.DriverName() == "pgx" {
		userID = "id SERIAL PRIMARY KEY"
	}

	stmts := []string{
		fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS "user" (
			%s,
			nombres TEXT NOT NULL,
			apellidos TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			pais TEXT NOT NULL,
			password TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		)`, userID),
		`
		CREATE TABLE IF NOT EXISTS informe (
			id TEXT PRIMARY KEY,
			user_id INTEGER NULL REFERENCES "user"(id),
			imo TEXT NOT NULL,
			vessel_name TEXT NOT NULL DEFAULT '',
			reporte TEXT NOT NULL,
			lat DOUBLE PRECISION NULL,
			lng DOUBLE PRECISION NULL,
			generated_at TIMESTAMP NOT NULL,
			duration_ms BIGINT NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_informe_user ON informe (user_id, generated_at)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}

	s.logger.Info("schema ensured", "driver", s.db.DriverName())
	return nil
}

// isUniqueViolation matches the duplicate-key errors of both drivers.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "unique constraint")
}
