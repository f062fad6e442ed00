package domain

import (
	"context"
	"time"
)

// NewAdsEvent — событие «для запрашивающего найдено N новых объявлений».
type NewAdsEvent struct {
	ID        string    `json:"event_id"`
	Requester string    `json:"requester"`
	ChatID    int64     `json:"chat_id"`
	City      string    `json:"city"`
	Count     int       `json:"count"`
	CreatedAt time.Time `json:"created_at"`
}

// NotificationQueue — ограниченная очередь уведомлений без гарантий доставки.
// Publish не блокируется: при переполнении или сбое событие отбрасывается с ошибкой.
type NotificationQueue interface {
	Publish(ctx context.Context, event NewAdsEvent) error
	Receive(ctx context.Context) (NewAdsEvent, error)
}
