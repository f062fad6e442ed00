// Package schedule запускает проходы конвейера: по таймеру и по запросу.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"apartment-bot/internal/domain"
)

// Sweeper выполняет проход по одному городу.
type Sweeper interface {
	Sweep(ctx context.Context, req domain.SweepRequest) (int, error)
}

// Config задаёт параметры планировщика.
type Config struct {
	Cities      []string
	Interval    time.Duration
	Concurrency int
	Cooldown    time.Duration
}

// Scheduler — единая точка запуска проходов: плановых и разовых.
type Scheduler struct {
	sweeper Sweeper
	cache   domain.Cache
	cfg     Config
	log     zerolog.Logger
}

// NewScheduler создаёт планировщик.
func NewScheduler(sweeper Sweeper, cache domain.Cache, cfg Config, log zerolog.Logger) *Scheduler {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	return &Scheduler{sweeper: sweeper, cache: cache, cfg: cfg, log: log}
}

// Run выполняет полный проход сразу и затем каждые Interval, пока ctx не отменён.
func (s *Scheduler) Run(ctx context.Context) error {
	s.log.Info().Dur("interval", s.cfg.Interval).Strs("cities", s.cfg.Cities).Msg("scheduler: старт")
	s.SweepAll(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler: остановка")
			return nil
		case <-ticker.C:
			s.SweepAll(ctx)
		}
	}
}

// SweepAll проходит все города без фильтров от имени запрашивающего по умолчанию.
func (s *Scheduler) SweepAll(ctx context.Context) int {
	total, err := s.Trigger(ctx, domain.SweepRequest{
		Requester: domain.DefaultRequester,
		Trigger:   domain.TriggerScheduled,
	})
	if err != nil {
		s.log.Warn().Err(err).Int("new", total).Msg("scheduler: проход завершён с ошибками")
		return total
	}
	s.log.Info().Int("new", total).Msg("scheduler: проход завершён")
	return total
}

// Trigger запускает проход по одному городу или, если City пуст, по всем.
// Разовые проходы дедуплицируются по (requester, city, filter) на время Cooldown.
// Сбой одного города не мешает остальным; ошибки объединяются.
func (s *Scheduler) Trigger(ctx context.Context, req domain.SweepRequest) (int, error) {
	cities := s.cfg.Cities
	if req.City != "" {
		if _, ok := domain.Cities[req.City]; !ok {
			return 0, fmt.Errorf("%w: unknown city %q", domain.ErrValidation, req.City)
		}
		cities = []string{req.City}
	}
	if req.Requester == "" {
		req.Requester = domain.DefaultRequester
	}
	if req.Trigger == "" {
		req.Trigger = domain.TriggerAdHoc
	}

	var (
		mu    sync.Mutex
		total int
		errs  []error
	)
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for _, city := range cities {
		cityReq := req
		cityReq.City = city
		g.Go(func() error {
			n, err := s.sweepCity(ctx, cityReq)
			mu.Lock()
			defer mu.Unlock()
			total += n
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", cityReq.City, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return total, errors.Join(errs...)
}

func (s *Scheduler) sweepCity(ctx context.Context, req domain.SweepRequest) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if req.Trigger != domain.TriggerAdHoc || s.cache == nil || s.cfg.Cooldown <= 0 {
		return s.sweeper.Sweep(ctx, req)
	}
	var n int
	key := fmt.Sprintf("sweep:%s:%s:%s", req.Requester, req.City, req.Filter.Key())
	err := s.cache.Once(ctx, key, s.cfg.Cooldown, func() error {
		var err error
		n, err = s.sweeper.Sweep(ctx, req)
		return err
	})
	return n, err
}
