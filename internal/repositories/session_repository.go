package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vidtube/backend/internal/auth"
	"github.com/vidtube/backend/internal/db"
)

// PostgresSessionStore persists each user's active refresh token on the users table.
type PostgresSessionStore struct {
	pool db.Pool
}

// NewPostgresSessionStore constructs a session store backed by PostgreSQL.
func NewPostgresSessionStore(pool db.Pool) *PostgresSessionStore {
	return &PostgresSessionStore{pool: pool}
}

// SaveRefreshToken updates only the refresh token column of the user.
func (s *PostgresSessionStore) SaveRefreshToken(ctx context.Context, userID, refreshToken string) error {
	return s.setToken(ctx, userID, refreshToken)
}

// FindRefreshToken loads the stored refresh token; "" means none is active.
func (s *PostgresSessionStore) FindRefreshToken(ctx context.Context, userID string) (string, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var token *string
	err = conn.QueryRow(ctx, `
        SELECT refresh_token
        FROM users
        WHERE id = $1
    `, userID).Scan(&token)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", auth.ErrUserNotFound
		}
		return "", fmt.Errorf("select refresh token: %w", err)
	}

	if token == nil {
		return "", nil
	}
	return *token, nil
}

// DeleteRefreshToken sets the user's refresh token to NULL.
func (s *PostgresSessionStore) DeleteRefreshToken(ctx context.Context, userID string) error {
	return s.setToken(ctx, userID, nil)
}

func (s *PostgresSessionStore) setToken(ctx context.Context, userID string, token any) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET refresh_token = $2
        WHERE id = $1
    `, userID, token)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return auth.ErrUserNotFound
	}

	return nil
}

var _ auth.SessionStore = (*PostgresSessionStore)(nil)
