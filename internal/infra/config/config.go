package config

import (
	"log"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv      string `envconfig:"APP_ENV" default:"dev"`
	Port        int    `envconfig:"PORT" default:"5000"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`

	Telegram struct {
		Token         string `envconfig:"TG_BOT_TOKEN"`
		PublicBaseURL string `envconfig:"PUBLIC_BASE_URL"`
		AdminID       string `envconfig:"ADMIN_ID"`
		WebhookSecret string `envconfig:"WEBHOOK_SECRET"`
		WebAppAuth    bool   `envconfig:"WEBAPP_AUTH" default:"false"`
	} `envconfig:""`

	PGDSN          string `envconfig:"PG_DSN"`
	DBResetOnStart bool   `envconfig:"DB_RESET_ON_START" default:"false"`

	RedisAddr string `envconfig:"REDIS_ADDR"`
	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Source struct {
		BaseURL   string        `envconfig:"SOURCE_BASE_URL" default:"https://re.kufar.by"`
		UserAgent string        `envconfig:"SOURCE_USER_AGENT" default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:126.0) Gecko/20100101 Firefox/126.0"`
		Timeout   time.Duration `envconfig:"REQUEST_TIMEOUT" default:"10s"`
	} `envconfig:""`

	Sweep struct {
		Enabled        bool          `envconfig:"SCHEDULER_ENABLED" default:"true"`
		Cities         []string      `envconfig:"CITIES" default:"minsk,brest,grodno,gomel,vitebsk,mogilev"`
		Interval       time.Duration `envconfig:"PARSE_INTERVAL" default:"5m"`
		Concurrency    int           `envconfig:"SWEEP_CONCURRENCY" default:"3"`
		AdHocCooldown  time.Duration `envconfig:"ADHOC_SWEEP_COOLDOWN" default:"1m"`
		DefaultPageLen int           `envconfig:"PAGE_SIZE" default:"7"`
	} `envconfig:""`

	Queue struct {
		Backend string `envconfig:"NOTIFY_QUEUE" default:"memory"`
		Key     string `envconfig:"NOTIFY_QUEUE_KEY" default:"new_ads_events"`
		Size    int    `envconfig:"NOTIFY_QUEUE_SIZE" default:"100"`
	} `envconfig:""`

	Uploads struct {
		Dir       string `envconfig:"UPLOAD_DIR" default:"uploads"`
		StaticDir string `envconfig:"STATIC_DIR" default:"static"`
		MaxMB     int64  `envconfig:"UPLOAD_MAX_MB" default:"20"`
	} `envconfig:""`
}

// WebhookURL возвращает адрес вебхука Telegram.
func (c AppConfig) WebhookURL() string {
	return strings.TrimRight(c.Telegram.PublicBaseURL, "/") + "/webhook"
}

// MiniAppURL возвращает адрес мини-приложения.
func (c AppConfig) MiniAppURL() string {
	return strings.TrimRight(c.Telegram.PublicBaseURL, "/") + "/mini-app"
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}
