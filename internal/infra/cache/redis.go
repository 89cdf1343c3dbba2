package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache реализует одноразовые аренды через Redis SETNX.
type RedisCache struct {
	client *redis.Client
}

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Once выполняет функцию, если ключ ещё не задан. При ошибке fn ключ снимается,
// чтобы следующий претендент мог повторить работу.
func (c *RedisCache) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) (bool, error) {
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(context.WithoutCancel(ctx), key).Err()
		return true, err
	}
	return true, nil
}
