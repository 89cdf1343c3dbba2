package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"broadcast-hub/internal/domain"
	"broadcast-hub/internal/infra/metrics"
)

// RedisEventQueue складывает события жизненного цикла в Redis list.
type RedisEventQueue struct {
	client *redis.Client
	key    string
	maxLen int64
}

var _ domain.EventPublisher = (*RedisEventQueue)(nil)

// NewRedisEventQueue создаёт очередь по указанному ключу. maxLen > 0 ограничивает длину списка.
func NewRedisEventQueue(client *redis.Client, key string, maxLen int64) *RedisEventQueue {
	return &RedisEventQueue{client: client, key: key, maxLen: maxLen}
}

// Publish кладёт событие в голову списка.
func (q *RedisEventQueue) Publish(ctx context.Context, event domain.BroadcastEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	pipe := q.client.TxPipeline()
	pipe.LPush(ctx, q.key, payload)
	if q.maxLen > 0 {
		pipe.LTrim(ctx, q.key, 0, q.maxLen-1)
	}
	_, err = pipe.Exec(ctx)
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	return nil
}
