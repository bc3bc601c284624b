package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKeyPrefix    = "reconcile:queue:"
	enqueuedKeyPrefix = "reconcile:enqueued:"
	enqueuedKeyTTL    = 24 * time.Hour
)

// RedisQueue is a durable Queue on a Redis list, so deltas survive a
// restart between the order write and the inventory push.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue creates a queue for one shop.
func NewRedisQueue(client *redis.Client, shopID string) *RedisQueue {
	return &RedisQueue{client: client, key: queueKeyPrefix + shopID}
}

// Push implements Queue.
func (q *RedisQueue) Push(ctx context.Context, t Task) error {
	if t.Attempts == 0 && t.Delta.Key != "" {
		ok, err := q.client.SetNX(ctx, enqueuedKeyPrefix+t.Delta.Key, 1, enqueuedKeyTTL).Result()
		if err != nil {
			return fmt.Errorf("mark delta enqueued: %w", err)
		}
		if !ok {
			return nil
		}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.key, data).Err()
}

// Pop implements Queue.
func (q *RedisQueue) Pop(ctx context.Context, wait time.Duration) (Task, bool, error) {
	var (
		data string
		err  error
	)
	if wait <= 0 {
		data, err = q.client.LPop(ctx, q.key).Result()
	} else {
		var res []string
		res, err = q.client.BLPop(ctx, wait, q.key).Result()
		if err == nil {
			data = res[1]
		}
	}
	if errors.Is(err, redis.Nil) {
		return Task{}, false, nil
	}
	if err != nil {
		return Task{}, false, err
	}

	var t Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return Task{}, false, fmt.Errorf("decode queued delta: %w", err)
	}
	return t, true, nil
}

// Len implements Queue.
func (q *RedisQueue) Len(ctx context.Context) (int, error) {
	n, err := q.client.LLen(ctx, q.key).Result()
	return int(n), err
}

// Pending implements Queue.
func (q *RedisQueue) Pending(ctx context.Context) ([]Task, error) {
	raw, err := q.client.LRange(ctx, q.key, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	tasks := make([]Task, 0, len(raw))
	for _, data := range raw {
		var t Task
		if err := json.Unmarshal([]byte(data), &t); err != nil {
			return nil, fmt.Errorf("decode queued delta: %w", err)
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}
