package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"apartment-bot/internal/infra/metrics"
)

// RedisCache реализует domain.Cache через Redis.
type RedisCache struct {
	client *redis.Client
	prefix string
	log    zerolog.Logger
}

// NewRedis создаёт кэш. Все ключи получают общий префикс.
func NewRedis(client *redis.Client, prefix string, log zerolog.Logger) *RedisCache {
	return &RedisCache{client: client, prefix: prefix, log: log}
}

// Once выполняет функцию, если ключ ещё не задан. При ошибке fn ключ снимается.
// Если Redis недоступен, fn выполняется без дедупликации.
func (c *RedisCache) Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	key = c.prefix + key
	start := time.Now()
	ok, err := c.client.SetNX(ctx, key, "1", ttl).Result()
	metrics.ObserveNetworkRequest("redis", "setnx", "cache", start, err)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("cache: redis недоступен, выполняем без дедупликации")
		return fn()
	}
	if !ok {
		return nil
	}
	if err := fn(); err != nil {
		_ = c.client.Del(context.WithoutCancel(ctx), key).Err()
		return err
	}
	return nil
}
