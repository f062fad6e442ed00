package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/metrics"
)

// RedisQueue реализует очередь уведомлений на базе Redis lists.
// Список ограничен size элементами: при переполнении теряются самые старые события.
type RedisQueue struct {
	client *redis.Client
	key    string
	size   int64
}

// NewRedisQueue создаёт очередь по указанному ключу.
func NewRedisQueue(client *redis.Client, key string, size int) *RedisQueue {
	if size <= 0 {
		size = 1
	}
	return &RedisQueue{client: client, key: key, size: int64(size)}
}

// Publish публикует событие в очередь.
func (q *RedisQueue) Publish(ctx context.Context, event domain.NewAdsEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	start := time.Now()
	pipe := q.client.TxPipeline()
	push := pipe.LPush(ctx, q.key, payload)
	pipe.LTrim(ctx, q.key, 0, q.size-1)
	_, err = pipe.Exec(ctx)
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push event: %w", err)
	}
	if overflow := push.Val() - q.size; overflow > 0 {
		metrics.NotificationQueueDropped.Add(float64(overflow))
	}
	return nil
}

// Receive блокирующе читает событие из очереди.
func (q *RedisQueue) Receive(ctx context.Context) (domain.NewAdsEvent, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.NewAdsEvent{}, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.NewAdsEvent{}, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.NewAdsEvent{}, err
		}
		if len(res) != 2 {
			return domain.NewAdsEvent{}, errors.New("redis queue: unexpected response")
		}
		var event domain.NewAdsEvent
		if err := json.Unmarshal([]byte(res[1]), &event); err != nil {
			return domain.NewAdsEvent{}, fmt.Errorf("decode event: %w", err)
		}
		return event, nil
	}
}
