package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"chancai/internal/types"
)

// CreateUser inserts a new account and returns it. The password must
// already be hashed by the caller.
func (s *Store) CreateUser(ctx context.Context, req types.RegisterRequest, passwordHash string) (*types.Usuario, error) {
	now := time.Now().UTC()

	var id int
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO "user" (nombres, apellidos, email, pais, password, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, req.Nombres, req.Apellidos, req.Email, req.Pais, passwordHash, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicateEmail
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	return &types.Usuario{
		ID:        id,
		Nombres:   req.Nombres,
		Apellidos: req.Apellidos,
		Email:     req.Email,
		Pais:      req.Pais,
		CreatedAt: now,
	}, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*types.Usuario, string, error) {
	var row struct {
		types.Usuario
		Password string `db:"password"`
	}

	err := s.db.GetContext(ctx, &row, `
		SELECT id, nombres, apellidos, email, pais, password, created_at
		FROM "user"
		WHERE email = $1
		LIMIT 1
	`, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", err
	}

	return &row.Usuario, row.Password, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID int) (*types.Usuario, error) {
	var user types.Usuario

	err := s.db.GetContext(ctx, &user, `
		SELECT id, nombres, apellidos, email, pais, created_at
		FROM "user"
		WHERE id = $1
	`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return &user, nil
}
