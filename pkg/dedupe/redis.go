package dedupe

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// RedisGate implements Gate on Redis. TrySetKey maps to a single
// SET key 1 NX EX ttl round trip, so the check and the set cannot race.
type RedisGate struct {
	client *goredis.Client
}

// NewRedisGate wraps an existing client. The client is shared, not re-opened,
// across concurrent callers.
func NewRedisGate(client *goredis.Client) *RedisGate {
	return &RedisGate{client: client}
}

var _ Gate = (*RedisGate)(nil)

func (g *RedisGate) TrySetKey(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	return g.client.SetNX(ctx, key, "1", ttl).Result()
}

func (g *RedisGate) CheckKey(ctx context.Context, key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	n, err := g.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *RedisGate) DeleteKey(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	return g.client.Del(ctx, key).Err()
}

func (g *RedisGate) TTL(ctx context.Context, key string) (time.Duration, bool, error) {
	if err := validateKey(key); err != nil {
		return 0, false, err
	}
	ttl, err := g.client.TTL(ctx, key).Result()
	if err != nil {
		return 0, false, err
	}
	// go-redis returns -2 for a missing key and -1 for no expiry.
	if ttl < 0 {
		return 0, false, nil
	}
	return ttl, true, nil
}
