// Package notify доставляет уведомления о новых объявлениях.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/metrics"
)

// Service читает события из очереди и делает ровно одну попытку доставки на событие.
type Service struct {
	queue     domain.NotificationQueue
	messenger domain.Messenger
	log       zerolog.Logger
	backoff   time.Duration
}

// NewService создаёт доставщика уведомлений.
func NewService(queue domain.NotificationQueue, messenger domain.Messenger, log zerolog.Logger) *Service {
	return &Service{queue: queue, messenger: messenger, log: log, backoff: time.Second}
}

// Text возвращает текст уведомления.
func Text(count int) string {
	return fmt.Sprintf("Появилось %d новых объявлений! Зайдите в приложение, чтобы посмотреть.", count)
}

// Run обрабатывает очередь до отмены ctx.
func (s *Service) Run(ctx context.Context) error {
	s.log.Info().Msg("notify: старт")
	for {
		event, err := s.queue.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Info().Msg("notify: остановка")
				return nil
			}
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			s.log.Error().Err(err).Msg("notify: ошибка чтения очереди")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(s.backoff):
			}
			continue
		}
		_ = s.Deliver(ctx, event)
	}
}

// Deliver отправляет одно уведомление. Ошибка логируется и возвращается, повтора нет.
func (s *Service) Deliver(ctx context.Context, event domain.NewAdsEvent) error {
	log := s.log.With().Str("event_id", event.ID).Int64("chat_id", event.ChatID).Int("count", event.Count).Logger()
	if event.ChatID == 0 || event.Count <= 0 {
		log.Warn().Msg("notify: пропускаем некорректное событие")
		return fmt.Errorf("%w: malformed event", domain.ErrValidation)
	}
	_, err := s.messenger.SendMessage(ctx, event.ChatID, Text(event.Count), nil)
	metrics.ObserveNotification(err)
	if err != nil {
		log.Error().Err(err).Msg("notify: не удалось доставить уведомление")
		return err
	}
	log.Info().Msg("notify: уведомление доставлено")
	return nil
}
