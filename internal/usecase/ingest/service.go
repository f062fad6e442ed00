// Package ingest выполняет один проход конвейера для города:
// получение, фильтрация, дедупликация и публикация события о новых объявлениях.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/metrics"
)

// Service связывает источник, хранилище и очередь уведомлений.
type Service struct {
	fetcher domain.Fetcher
	store   domain.ListingStore
	queue   domain.NotificationQueue
	log     zerolog.Logger
	now     func() time.Time
}

// NewService создаёт сервис прохода.
func NewService(fetcher domain.Fetcher, store domain.ListingStore, queue domain.NotificationQueue, log zerolog.Logger) *Service {
	return &Service{fetcher: fetcher, store: store, queue: queue, log: log, now: time.Now}
}

// Sweep выполняет проход по одному городу и возвращает число новых объявлений.
// Ошибка возвращается только при сбое хранилища; сбой источника даёт пустой проход.
func (s *Service) Sweep(ctx context.Context, req domain.SweepRequest) (int, error) {
	if req.City == "" {
		return 0, fmt.Errorf("%w: city is required", domain.ErrValidation)
	}
	requester := strings.TrimSpace(req.Requester)
	if requester == "" {
		requester = domain.DefaultRequester
	}
	trigger := req.Trigger
	if trigger == "" {
		trigger = domain.TriggerScheduled
	}
	log := s.log.With().Str("city", req.City).Str("requester", requester).Str("trigger", string(trigger)).Logger()

	start := time.Now()
	fetched := s.fetcher.Fetch(ctx, req.City, req.Filter)
	matched := req.Filter.Apply(fetched)

	newOnes, err := s.store.StoreBatch(ctx, requester, matched)
	metrics.ObserveSweep(req.City, string(trigger), start, len(newOnes), err)
	if err != nil {
		log.Error().Err(err).Msg("ingest: не удалось сохранить объявления")
		return 0, fmt.Errorf("store batch: %w", err)
	}
	log.Info().
		Int("fetched", len(fetched)).
		Int("matched", len(matched)).
		Int("new", len(newOnes)).
		Msg("ingest: проход завершён")

	if len(newOnes) > 0 {
		s.publish(ctx, log, requester, req.City, len(newOnes))
	}
	return len(newOnes), nil
}

func (s *Service) publish(ctx context.Context, log zerolog.Logger, requester, city string, count int) {
	if !domain.IsChatID(requester) {
		log.Info().Int("count", count).Msg("ingest: запрашивающий без chat id, уведомление не отправляется")
		return
	}
	chatID, err := strconv.ParseInt(requester, 10, 64)
	if err != nil {
		log.Warn().Err(err).Msg("ingest: chat id вне диапазона")
		return
	}
	event := domain.NewAdsEvent{
		ID:        uuid.NewString(),
		Requester: requester,
		ChatID:    chatID,
		City:      city,
		Count:     count,
		CreatedAt: s.now().UTC(),
	}
	if err := s.queue.Publish(ctx, event); err != nil {
		if errors.Is(err, domain.ErrQueueFull) {
			log.Warn().Str("event_id", event.ID).Msg("ingest: очередь уведомлений переполнена, событие отброшено")
			return
		}
		log.Error().Err(err).Str("event_id", event.ID).Msg("ingest: не удалось поставить уведомление в очередь")
	}
}
