package schedule

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "tarotq:schedule_lock:"

// RedisLockProvider implements LockProvider with SET NX EX, the same
// single-round-trip claim the dedupe gate uses.
type RedisLockProvider struct {
	client *redis.Client
}

func NewRedisLockProvider(client *redis.Client) *RedisLockProvider {
	return &RedisLockProvider{client: client}
}

func (r *RedisLockProvider) GetLock(ctx context.Context, name string, duration time.Duration) (bool, error) {
	return r.client.SetNX(ctx, lockKeyPrefix+name, "locked", duration).Result()
}

func (r *RedisLockProvider) ReleaseLock(ctx context.Context, name string) error {
	return r.client.Del(ctx, lockKeyPrefix+name).Err()
}
