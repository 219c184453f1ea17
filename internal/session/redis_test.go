package session

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestRedis connects to REDIS_TEST_ADDR and skips when it is not set
// or not reachable.
func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: 15})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis not reachable: %v", err)
	}
	require.NoError(t, rdb.FlushDB(context.Background()).Err())
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestKeys(t *testing.T) {
	s := NewRedisStore(redis.NewClient(&redis.Options{}))
	assert.Equal(t, "sess:abc", s.tokenKey("abc"))
	assert.Equal(t, "sess:user:42", s.userKey(42))
}

func TestRedisStoreLifecycle(t *testing.T) {
	s := NewRedisStore(newTestRedis(t))
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	require.NoError(t, s.Save(ctx, 7, "h1", exp))
	require.NoError(t, s.Save(ctx, 7, "h2", exp))

	id, err := s.Lookup(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), id)

	require.NoError(t, s.Revoke(ctx, "h1"))
	_, err = s.Lookup(ctx, "h1")
	assert.ErrorIs(t, err, ErrInvalid)
	require.NoError(t, s.Revoke(ctx, "h1"))

	require.NoError(t, s.RevokeUser(ctx, 7))
	_, err = s.Lookup(ctx, "h2")
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestRedisStoreRejectsExpired(t *testing.T) {
	s := NewRedisStore(newTestRedis(t))
	assert.Error(t, s.Save(context.Background(), 7, "h", time.Now().Add(-time.Minute)))
}
