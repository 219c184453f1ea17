package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// TokenRepo persists refresh-token hashes in MySQL.  It backs the session
// store when Redis is unavailable.
type TokenRepo struct{ DB *sql.DB }

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db} }

// Save inserts a refresh token hash row.
func (r *TokenRepo) Save(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at, created_at) VALUES (?,?,?,?)",
		userID, tokenHash, exp.UTC(), time.Now().UTC())
	return err
}

// Lookup returns the owner of a live token.  Unknown, revoked and expired
// tokens all report ErrNotFound.
func (r *TokenRepo) Lookup(ctx context.Context, tokenHash string) (uint64, error) {
	var (
		userID    uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	if revokedAt.Valid || time.Now().UTC().After(expiresAt) {
		return 0, ErrNotFound
	}
	return userID, nil
}

// Revoke marks a single token as revoked.
func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL",
		time.Now().UTC(), tokenHash)
	return err
}

// RevokeUser revokes every live token of a user.
func (r *TokenRepo) RevokeUser(ctx context.Context, userID uint64) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		time.Now().UTC(), userID)
	return err
}
