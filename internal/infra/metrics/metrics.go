package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 60},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	SweepsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweeps_total",
		Help: "Проходы по городам",
	}, []string{"city", "trigger", "status"})

	SweepDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sweep_duration_seconds",
		Help:    "Длительность прохода по городу",
		Buckets: prometheus.DefBuckets,
	}, []string{"city"})

	SweepNewAds = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sweep_new_ads_total",
		Help: "Новые объявления, найденные при проходах",
	}, []string{"city"})

	ExtractDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "extract_dropped_total",
		Help: "Кандидаты, отброшенные при разборе страницы",
	})

	NotificationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Попытки доставки уведомлений о новых объявлениях",
	}, []string{"status"})

	NotificationQueueDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_queue_dropped_total",
		Help: "События, отброшенные очередью уведомлений",
	})

	ModerationActions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "moderation_actions_total",
		Help: "Действия модерации",
	}, []string{"action"})

	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		NetworkRequestDuration,
		NetworkRequestTotal,
		SweepsTotal,
		SweepDuration,
		SweepNewAds,
		ExtractDropped,
		NotificationsTotal,
		NotificationQueueDropped,
		ModerationActions,
		BotSendErrors,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveSweep записывает итог прохода по городу.
func ObserveSweep(city, trigger string, start time.Time, newAds int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	SweepsTotal.WithLabelValues(city, trigger, status).Inc()
	SweepDuration.WithLabelValues(city).Observe(time.Since(start).Seconds())
	if newAds > 0 {
		SweepNewAds.WithLabelValues(city).Add(float64(newAds))
	}
}

// ObserveNotification записывает результат доставки уведомления.
func ObserveNotification(err error) {
	if err != nil {
		NotificationsTotal.WithLabelValues("error").Inc()
		return
	}
	NotificationsTotal.WithLabelValues("delivered").Inc()
}
