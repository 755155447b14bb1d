package sequence

import (
	"context"
	"time"

	"github.com/pkg/errors"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"sarisari/backend/internal/store"
)

const redisKeyPrefix = "sarisari:txn-seq:"

// RedisCounter keeps one INCR key per day. Keys expire two days after their
// first use so old days do not pile up.
type RedisCounter struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCounter(addr string, password string, db int) *RedisCounter {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCounter{client: client, ttl: 48 * time.Hour}
}

func (c *RedisCounter) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return store.Unavailable(errors.Wrap(err, "redis ping"))
	}
	return nil
}

func (c *RedisCounter) Close() error {
	return c.client.Close()
}

func (c *RedisCounter) Next(ctx context.Context, day string) (int64, error) {
	key := redisKeyPrefix + day
	val, err := c.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, store.Unavailable(errors.Wrapf(err, "redis incr %s", key))
	}
	if val == 1 {
		// The value is already taken; a missing TTL only leaks one key.
		if err := c.client.Expire(ctx, key, c.ttl).Err(); err != nil {
			zap.L().Warn("sequence key without ttl", zap.String("key", key), zap.Error(err))
		}
	}
	return val, nil
}
