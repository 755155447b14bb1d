package sequence

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRedisCounterIntegration(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	counter := NewRedisCounter(addr, os.Getenv("REDIS_TEST_PASSWORD"), 0)
	t.Cleanup(func() { _ = counter.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, counter.Ping(ctx))

	day := "test-" + uuid.NewString()
	const n = 50
	seen := make([]int64, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			v, err := counter.Next(ctx, day)
			seen[i] = v
			return err
		})
	}
	require.NoError(t, g.Wait())

	unique := make(map[int64]struct{}, n)
	for _, v := range seen {
		require.GreaterOrEqual(t, v, int64(1))
		require.LessOrEqual(t, v, int64(n))
		unique[v] = struct{}{}
	}
	require.Len(t, unique, n)

	ttl, err := counter.client.TTL(ctx, redisKeyPrefix+day).Result()
	require.NoError(t, err)
	require.Greater(t, ttl, time.Duration(0))
	require.NoError(t, counter.client.Del(ctx, redisKeyPrefix+day).Err())
}
