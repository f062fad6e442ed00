package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"apartment-bot/internal/domain"
)

func TestMemoryQueueDropsWhenFull(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()
	if err := q.Publish(ctx, domain.NewAdsEvent{ID: "1", Count: 2}); err != nil {
		t.Fatalf("first publish: %v", err)
	}
	err := q.Publish(ctx, domain.NewAdsEvent{ID: "2", Count: 3})
	if !errors.Is(err, domain.ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	event, err := q.Receive(ctx)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if event.ID != "1" {
		t.Fatalf("expected first event, got %q", event.ID)
	}
	if q.Len() != 0 {
		t.Fatalf("queue should be empty, has %d", q.Len())
	}
}

func TestMemoryQueueReceiveHonoursContext(t *testing.T) {
	q := NewMemoryQueue(4)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := q.Receive(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
