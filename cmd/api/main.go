package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"apartment-bot/internal/adapters/api"
	"apartment-bot/internal/adapters/bot"
	"apartment-bot/internal/adapters/kufar"
	"apartment-bot/internal/adapters/repo"
	"apartment-bot/internal/adapters/storage"
	"apartment-bot/internal/adapters/telegram"
	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/cache"
	"apartment-bot/internal/infra/config"
	"apartment-bot/internal/infra/db"
	httpinfra "apartment-bot/internal/infra/http"
	"apartment-bot/internal/infra/log"
	"apartment-bot/internal/infra/metrics"
	"apartment-bot/internal/infra/queue"
	"apartment-bot/internal/usecase/ingest"
	"apartment-bot/internal/usecase/moderation"
	"apartment-bot/internal/usecase/notify"
	"apartment-bot/internal/usecase/schedule"
)

func main() {
	cfg := config.Load()
	logger := log.NewLogger(cfg.AppEnv)

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.PGDSN, cfg.DBResetOnStart); err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось применить миграции")
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer pool.Close()
	repoAdapter := repo.NewPostgres(pool)

	var (
		redisClient *redis.Client
		sweepCache  domain.Cache = cache.Passthrough{}
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close()
		sweepCache = cache.NewRedis(redisClient, "apartment-bot:", logger)
	}
	notifyQueue, closeQueue, err := queue.Open(queue.Config{
		Backend:   cfg.Queue.Backend,
		Key:       cfg.Queue.Key,
		Size:      cfg.Queue.Size,
		RabbitURL: cfg.RabbitURL,
	}, redisClient)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось открыть очередь уведомлений")
	}
	defer closeQueue()

	fetcher, err := kufar.NewFetcher(kufar.Config{
		BaseURL:   cfg.Source.BaseURL,
		UserAgent: cfg.Source.UserAgent,
		Timeout:   cfg.Source.Timeout,
	}, log.Component(logger, "kufar"))
	if err != nil {
		logger.Fatal().Err(err).Msg("api: некорректный адрес источника")
	}
	ingestService := ingest.NewService(fetcher, repoAdapter, notifyQueue, log.Component(logger, "ingest"))
	scheduler := schedule.NewScheduler(ingestService, sweepCache, schedule.Config{
		Cities:      cfg.Sweep.Cities,
		Interval:    cfg.Sweep.Interval,
		Concurrency: cfg.Sweep.Concurrency,
		Cooldown:    cfg.Sweep.AdHocCooldown,
	}, log.Component(logger, "scheduler"))

	botAPI, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: не удалось создать бота")
	}
	messenger := telegram.NewClient(botAPI, log.Component(logger, "telegram"))

	images, err := storage.NewDisk(cfg.Uploads.Dir, cfg.Uploads.MaxMB<<20)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: каталог загрузок недоступен")
	}
	moderationService := moderation.NewService(repoAdapter, images, messenger, cfg.Telegram.AdminID, log.Component(logger, "moderation"))
	notifier := notify.NewService(notifyQueue, messenger, log.Component(logger, "notify"))
	webhookSecret := cfg.Telegram.WebhookSecret
	if webhookSecret == "" {
		webhookSecret = uuid.NewString()
	}
	botHandler := bot.NewHandler(messenger, moderationService, cfg.MiniAppURL(), webhookSecret, log.Component(logger, "bot"))

	if err := messenger.SetCommands(ctx, bot.Commands); err != nil {
		logger.Error().Err(err).Msg("api: ошибка установки команд меню")
	}
	if cfg.Telegram.PublicBaseURL != "" {
		if err := messenger.SetWebhook(ctx, cfg.WebhookURL(), webhookSecret); err != nil {
			logger.Error().Err(err).Msg("api: ошибка установки webhook")
		} else {
			logger.Info().Str("url", cfg.WebhookURL()).Msg("api: webhook установлен")
		}
	} else {
		logger.Warn().Msg("api: PUBLIC_BASE_URL не задан, webhook не устанавливается")
	}

	server := httpinfra.NewServer(log.Component(logger, "http"))
	var middlewares []func(http.Handler) http.Handler
	if cfg.Telegram.WebAppAuth {
		middlewares = append(middlewares, httpinfra.WebAppAuthMiddleware(cfg.Telegram.Token))
	} else {
		logger.Warn().Msg("api: WEBAPP_AUTH выключен, user_id запросов не проверяется")
	}
	api.NewHandler(repoAdapter, scheduler, moderationService, api.Options{
		PageSize:       cfg.Sweep.DefaultPageLen,
		MaxUploadBytes: cfg.Uploads.MaxMB << 20,
		StaticDir:      cfg.Uploads.StaticDir,
	}, log.Component(logger, "api")).Routes(server.Router, middlewares...)
	server.Router.Post("/webhook", botHandler.ServeHTTP)

	if cfg.MetricsAddr != "" {
		metrics.StartServer(ctx, log.Component(logger, "metrics"), cfg.MetricsAddr)
	}

	g, gctx := errgroup.WithContext(ctx)
	if cfg.Sweep.Enabled {
		g.Go(func() error { return scheduler.Run(gctx) })
	}
	g.Go(func() error { return notifier.Run(gctx) })
	g.Go(func() error { return server.Start(fmt.Sprintf(":%d", cfg.Port)) })
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("api: остановка")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("api: завершение с ошибкой")
	}
}
