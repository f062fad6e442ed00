package main

import (
	"context"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"apartment-bot/internal/adapters/kufar"
	"apartment-bot/internal/adapters/repo"
	"apartment-bot/internal/adapters/telegram"
	"apartment-bot/internal/infra/config"
	"apartment-bot/internal/infra/db"
	"apartment-bot/internal/infra/log"
	"apartment-bot/internal/infra/metrics"
	"apartment-bot/internal/infra/queue"
	"apartment-bot/internal/usecase/ingest"
	"apartment-bot/internal/usecase/notify"
	"apartment-bot/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.PGDSN, false); err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось применить миграции")
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
	}
	notifyQueue, closeQueue, err := queue.Open(queue.Config{
		Backend:   cfg.Queue.Backend,
		Key:       cfg.Queue.Key,
		Size:      cfg.Queue.Size,
		RabbitURL: cfg.RabbitURL,
	}, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось открыть очередь уведомлений")
	}
	defer closeQueue()

	fetcher, err := kufar.NewFetcher(kufar.Config{
		BaseURL:   cfg.Source.BaseURL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Source.Timeout,
	}, log.Component(logger, "kufar"))
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: некорректный адрес источника")
	}
	ingestService := ingest.NewService(fetcher, repoAdapter, notifyQueue, log.Component(logger, "ingest"))
	scheduler := schedule.NewScheduler(ingestService, nil, schedule.Config{
		Cities:      cfg.Sweep.Cities,
		Interval:    cfg.Sweep.Interval,
		Concurrency: cfg.Sweep.Concurrency,
	}, log.Component(logger, "scheduler"))

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}
	notifier := notify.NewService(notifyQueue, telegram.NewClient(botAPI, log.Component(logger, "telegram")), log.Component(logger, "notify"))

	metricsAddr := cfg.MetricsAddr
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}
	metrics.StartServer(ctx, log.Component(logger, "metrics"), metricsAddr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return scheduler.Run(gctx) })
	g.Go(func() error { return notifier.Run(gctx) })
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("scheduler: завершение с ошибкой")
	}
	logger.Info().Msg("scheduler: остановлен")
}
