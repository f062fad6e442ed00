package queue

import (
	"context"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/metrics"
)

// MemoryQueue — ограниченная очередь уведомлений в памяти процесса.
type MemoryQueue struct {
	events chan domain.NewAdsEvent
}

// NewMemoryQueue создаёт очередь заданной ёмкости.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1
	}
	return &MemoryQueue{events: make(chan domain.NewAdsEvent, size)}
}

// Publish кладёт событие без ожидания; при переполнении событие отбрасывается.
func (q *MemoryQueue) Publish(ctx context.Context, event domain.NewAdsEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.events <- event:
		return nil
	default:
		metrics.NotificationQueueDropped.Inc()
		return domain.ErrQueueFull
	}
}

// Receive блокирующе читает событие.
func (q *MemoryQueue) Receive(ctx context.Context) (domain.NewAdsEvent, error) {
	select {
	case <-ctx.Done():
		return domain.NewAdsEvent{}, ctx.Err()
	case event := <-q.events:
		return event, nil
	}
}

// Len возвращает число ожидающих событий.
func (q *MemoryQueue) Len() int {
	return len(q.events)
}
