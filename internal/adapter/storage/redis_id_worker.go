package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// 2022-01-01T00:00:00Z
	idEpochSeconds = 1640995200
	idCountBits    = 32
)

// RedisIDWorker builds ids as (seconds since epoch << 32) | per-day counter.
type RedisIDWorker struct {
	client *redis.Client
	now    func() time.Time
}

func NewRedisIDWorker(client *redis.Client) *RedisIDWorker {
	return &RedisIDWorker{client: client, now: time.Now}
}

func (w *RedisIDWorker) NextID(ctx context.Context, prefix string) (int64, error) {
	now := w.now().UTC()
	timestamp := now.Unix() - idEpochSeconds

	key := fmt.Sprintf("icr:%s:%s", prefix, now.Format("2006:01:02"))
	count, err := w.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("incr %s: %w", key, err)
	}

	return timestamp<<idCountBits | count, nil
}
