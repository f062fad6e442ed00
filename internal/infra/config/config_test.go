package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TG_BOT_TOKEN", "token")
	t.Setenv("PUBLIC_BASE_URL", "https://apartment-bot.example.com/")
	cfg := Load()
	if cfg.Source.Timeout != 10*time.Second {
		t.Fatalf("ожидали таймаут 10s, получили %s", cfg.Source.Timeout)
	}
	if cfg.Sweep.Interval != 5*time.Minute {
		t.Fatalf("ожидали интервал 5m, получили %s", cfg.Sweep.Interval)
	}
	if len(cfg.Sweep.Cities) != 6 {
		t.Fatalf("ожидали 6 городов, получили %v", cfg.Sweep.Cities)
	}
	if !cfg.Sweep.Enabled {
		t.Fatal("планировщик должен быть включён по умолчанию")
	}
	if cfg.Sweep.DefaultPageLen != 7 {
		t.Fatalf("ожидали размер страницы 7, получили %d", cfg.Sweep.DefaultPageLen)
	}
	if got := cfg.WebhookURL(); got != "https://apartment-bot.example.com/webhook" {
		t.Fatalf("unexpected webhook url %q", got)
	}
	if got := cfg.MiniAppURL(); got != "https://apartment-bot.example.com/mini-app" {
		t.Fatalf("unexpected mini-app url %q", got)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("CITIES", "minsk,brest")
	t.Setenv("PARSE_INTERVAL", "30s")
	t.Setenv("NOTIFY_QUEUE", "redis")
	t.Setenv("WEBHOOK_SECRET", "hook-secret")
	cfg := Load()
	if cfg.Telegram.WebhookSecret != "hook-secret" {
		t.Fatalf("unexpected webhook secret %q", cfg.Telegram.WebhookSecret)
	}
	if len(cfg.Sweep.Cities) != 2 || cfg.Sweep.Cities[1] != "brest" {
		t.Fatalf("unexpected cities %v", cfg.Sweep.Cities)
	}
	if cfg.Sweep.Interval != 30*time.Second {
		t.Fatalf("unexpected interval %s", cfg.Sweep.Interval)
	}
	if cfg.Queue.Backend != "redis" {
		t.Fatalf("unexpected queue backend %q", cfg.Queue.Backend)
	}
}
