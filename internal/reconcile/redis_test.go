package reconcile

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getRedisClient(t *testing.T) *redis.Client {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	return client
}

func TestRedisQueue_PushPop(t *testing.T) {
	client := getRedisClient(t)
	defer client.Close()

	ctx := context.Background()
	shop := "test-shop-" + time.Now().Format("150405.000000")
	q := NewRedisQueue(client, shop)
	d := delta("r-"+shop, "Milk", 2)
	defer client.Del(ctx, queueKeyPrefix+shop, enqueuedKeyPrefix+d.Key)

	require.NoError(t, q.Push(ctx, Task{Delta: d}))
	require.NoError(t, q.Push(ctx, Task{Delta: d}))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, d, pending[0].Delta)

	task, ok, err := q.Pop(ctx, 100*time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, d, task.Delta)

	_, ok, err = q.Pop(ctx, 0)
	require.NoError(t, err)
	assert.False(t, ok)
}
