// Package session stores refresh-token sessions.  Tokens are kept as
// SHA-256 hashes only; the raw value never leaves the client.
package session

import (
	"context"
	"errors"
	"time"
)

// ErrInvalid reports an unknown, revoked or expired refresh token.
var ErrInvalid = errors.New("session: invalid or expired refresh token")

// Store issues and checks refresh sessions.
type Store interface {
	Save(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Lookup(ctx context.Context, tokenHash string) (uint64, error)
	Revoke(ctx context.Context, tokenHash string) error
	RevokeUser(ctx context.Context, userID uint64) error
}
