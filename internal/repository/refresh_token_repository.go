package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"omega-store/internal/domain"

	"github.com/google/uuid"
)

var (
	ErrRefreshTokenNotFound = errors.New("refresh token not found")
	ErrRefreshTokenRevoked  = errors.New("refresh token has been revoked")
)

// RefreshTokenRepository stores the server-side half of a customer session
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	// Consume revokes token and returns it. A token can be consumed once.
	Consume(ctx context.Context, token string) (*domain.RefreshToken, error)
	Revoke(ctx context.Context, token string) error
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error)
}

type refreshTokenRepository struct {
	db *sql.DB
}

// NewRefreshTokenRepository creates a new instance of RefreshTokenRepository
func NewRefreshTokenRepository(db *sql.DB) RefreshTokenRepository {
	return &refreshTokenRepository{db: db}
}

func (r *refreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	_, err := conn(ctx, r.db).ExecContext(ctx, `
		INSERT INTO refresh_tokens (id, user_id, token, expires_at, created_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		token.ID, token.UserID, token.Token, token.ExpiresAt, token.CreatedAt, token.Revoked,
	)
	if err != nil {
		return fmt.Errorf("failed to store session token for user %s: %w", token.UserID, err)
	}
	return nil
}

func (r *refreshTokenRepository) Consume(ctx context.Context, token string) (*domain.RefreshToken, error) {
	db := conn(ctx, r.db)

	consumed := &domain.RefreshToken{Revoked: true}
	err := db.QueryRowContext(ctx, `
		UPDATE refresh_tokens SET revoked = TRUE
		WHERE token = $1 AND NOT revoked
		RETURNING id, user_id, token, expires_at, created_at`,
		token,
	).Scan(&consumed.ID, &consumed.UserID, &consumed.Token, &consumed.ExpiresAt, &consumed.CreatedAt)
	if err == nil {
		return consumed, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to consume session token: %w", err)
	}

	// Nothing was updated: either the token is unknown or it was used already
	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE token = $1)`, token).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to look up session token: %w", err)
	}
	if exists {
		return nil, ErrRefreshTokenRevoked
	}
	return nil, ErrRefreshTokenNotFound
}

func (r *refreshTokenRepository) Revoke(ctx context.Context, token string) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE refresh_tokens SET revoked = TRUE WHERE token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to revoke session token: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrRefreshTokenNotFound
	}
	return nil
}

// RevokeAllForUser ends every open session of a user and reports how many
// were still active
func (r *refreshTokenRepository) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	result, err := conn(ctx, r.db).ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked = TRUE WHERE user_id = $1 AND NOT revoked`, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to revoke sessions of user %s: %w", userID, err)
	}
	return result.RowsAffected()
}
