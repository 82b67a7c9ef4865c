package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/rl1809/review-platform/internal/core/domain"
)

const lockKeyPrefix = "lock:"

var unlockScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisLocker implements a lease-based mutex on SET NX PX with compare-and-delete release.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker creates a locker whose tokens share a per-process random prefix.
func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: uuid.NewString()}
}

func (l *RedisLocker) TryAcquire(ctx context.Context, name string, lease time.Duration) (domain.LockHandle, bool, error) {
	handle := domain.LockHandle{
		Name:  name,
		Token: l.prefix + "-" + uuid.NewString(),
		Lease: lease,
	}

	ok, err := l.client.SetNX(ctx, lockKeyPrefix+name, handle.Token, lease).Result()
	if err != nil {
		return domain.LockHandle{}, false, err
	}
	if !ok {
		return domain.LockHandle{}, false, nil
	}
	return handle, true, nil
}

func (l *RedisLocker) Release(ctx context.Context, handle domain.LockHandle) (bool, error) {
	n, err := unlockScript.Run(ctx, l.client, []string{lockKeyPrefix + handle.Name}, handle.Token).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}
