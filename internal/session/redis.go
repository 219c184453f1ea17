package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps one key per session, sess:<hash> -> user id, with the
// token's remaining lifetime as TTL.  A set per user lists its hashes so
// that logout-everywhere can drop them together.
type RedisStore struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisStore(rdb redis.Cmdable) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "sess:"}
}

func (s *RedisStore) tokenKey(hash string) string { return s.prefix + hash }

func (s *RedisStore) userKey(userID uint64) string {
	return s.prefix + "user:" + strconv.FormatUint(userID, 10)
}

func (s *RedisStore) Save(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error {
	ttl := time.Until(exp)
	if ttl <= 0 {
		return errors.New("session already expired")
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.tokenKey(tokenHash), strconv.FormatUint(userID, 10), ttl)
	pipe.SAdd(ctx, s.userKey(userID), tokenHash)
	pipe.Expire(ctx, s.userKey(userID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Lookup(ctx context.Context, tokenHash string) (uint64, error) {
	v, err := s.rdb.Get(ctx, s.tokenKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInvalid
	}
	if err != nil {
		return 0, err
	}
	id, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0, ErrInvalid
	}
	return id, nil
}

func (s *RedisStore) Revoke(ctx context.Context, tokenHash string) error {
	v, err := s.rdb.GetDel(ctx, s.tokenKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}
	if id, perr := strconv.ParseUint(v, 10, 64); perr == nil {
		return s.rdb.SRem(ctx, s.userKey(id), tokenHash).Err()
	}
	return nil
}

func (s *RedisStore) RevokeUser(ctx context.Context, userID uint64) error {
	hashes, err := s.rdb.SMembers(ctx, s.userKey(userID)).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, s.tokenKey(h))
	}
	keys = append(keys, s.userKey(userID))
	return s.rdb.Del(ctx, keys...).Err()
}
