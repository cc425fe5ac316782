package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps window counters in Redis so the limit holds across
// replicas. INCR is atomic server-side; the key expires when the window
// elapses, which starts a fresh window on the next request.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: "ratelimit:"}
}

func (s *RedisStore) Incr(ctx context.Context, clientID string, window time.Duration) (int, error) {
	key := s.prefix + clientID
	count, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("ratelimit incr: %w", err)
	}
	if count == 1 {
		if err := s.rdb.Expire(ctx, key, window).Err(); err != nil {
			return 0, fmt.Errorf("ratelimit expire: %w", err)
		}
	}
	return int(count), nil
}
