package session

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/parking-reservation/internal/repository"
)

// SQLStore keeps sessions in the refresh_tokens table.  It is used when
// Redis is not reachable at startup.
type SQLStore struct {
	tokens *repository.TokenRepo
}

func NewSQLStore(tokens *repository.TokenRepo) *SQLStore { return &SQLStore{tokens: tokens} }

func (s *SQLStore) Save(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	return s.tokens.Save(ctx, userID, tokenHash, exp)
}

func (s *SQLStore) Lookup(ctx context.Context, tokenHash string) (uint64, error) {
	id, err := s.tokens.Lookup(ctx, tokenHash)
	if errors.Is(err, repository.ErrNotFound) {
		return 0, ErrInvalid
	}
	return id, err
}

func (s *SQLStore) Revoke(ctx context.Context, tokenHash string) error {
	return s.tokens.Revoke(ctx, tokenHash)
}

func (s *SQLStore) RevokeUser(ctx context.Context, userID uint64) error {
	return s.tokens.RevokeUser(ctx, userID)
}

var (
	_ Store = (*SQLStore)(nil)
	_ Store = (*RedisStore)(nil)
)
