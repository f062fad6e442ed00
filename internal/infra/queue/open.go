package queue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"apartment-bot/internal/domain"
)

// Backend — реализация очереди уведомлений.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendRabbitMQ = "rabbitmq"
)

// Config выбирает и настраивает очередь.
type Config struct {
	Backend   string
	Key       string
	Size      int
	RabbitURL string
}

// Open создаёт очередь выбранного типа. Возвращаемая функция освобождает ресурсы.
func Open(cfg Config, redisClient *redis.Client) (domain.NotificationQueue, func(), error) {
	noop := func() {}
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "", BackendMemory:
		return NewMemoryQueue(cfg.Size), noop, nil
	case BackendRedis:
		if redisClient == nil {
			return nil, noop, errors.New("redis queue requires REDIS_ADDR")
		}
		return NewRedisQueue(redisClient, cfg.Key, cfg.Size), noop, nil
	case BackendRabbitMQ:
		q, err := NewRabbitQueue(cfg.RabbitURL, cfg.Key, cfg.Size)
		if err != nil {
			return nil, noop, err
		}
		return q, func() { _ = q.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown notification queue backend %q", cfg.Backend)
	}
}
