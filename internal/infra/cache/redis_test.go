package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func unreachableRedis(t *testing.T) *redis.Client {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestRedisOnceRunsWhenRedisUnavailable(t *testing.T) {
	c := NewRedis(unreachableRedis(t), "test:", zerolog.Nop())

	calls := 0
	for i := 0; i < 2; i++ {
		if err := c.Once(context.Background(), "sweep:minsk:42", time.Minute, func() error {
			calls++
			return nil
		}); err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if calls != 2 {
		t.Fatalf("без Redis проход должен выполняться каждый раз, вызовов: %d", calls)
	}
}

func TestRedisOnceReturnsFnErrorWhenRedisUnavailable(t *testing.T) {
	c := NewRedis(unreachableRedis(t), "test:", zerolog.Nop())
	boom := errors.New("kufar недоступен")

	err := c.Once(context.Background(), "sweep:brest:7", time.Minute, func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("ожидали ошибку fn, получили %v", err)
	}
}

func TestPassthroughAlwaysRuns(t *testing.T) {
	calls := 0
	for i := 0; i < 3; i++ {
		_ = Passthrough{}.Once(context.Background(), "k", time.Minute, func() error {
			calls++
			return nil
		})
	}
	if calls != 3 {
		t.Fatalf("ожидали 3 вызова, получили %d", calls)
	}
}
