package kufar

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/metrics"
)

const maxBodyBytes = 8 << 20

// Config задаёт параметры источника.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Fetcher запрашивает страницу поиска Kufar и передаёт её Extractor.
type Fetcher struct {
	client    *http.Client
	base      *url.URL
	userAgent string
	timeout   time.Duration
	extractor *Extractor
	log       zerolog.Logger
}

var _ domain.Fetcher = (*Fetcher)(nil)

// NewFetcher создаёт клиента источника.
func NewFetcher(cfg Config, log zerolog.Logger) (*Fetcher, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: cfg.Timeout},
		base:      base,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		extractor: NewExtractor(base, log),
		log:       log,
	}, nil
}

// SearchURL строит адрес поиска: сегмент комнат только при rooms > 0,
// диапазон цены только при обеих границах.
func (f *Fetcher) SearchURL(city string, filter domain.SearchFilter) string {
	path := fmt.Sprintf("/l/%s/snyat/kvartiru-dolgosrochno", url.PathEscape(city))
	if filter.Rooms != nil && *filter.Rooms > 0 {
		path += "/" + strconv.Itoa(*filter.Rooms) + "k"
	}
	u := *f.base
	u.Path = path
	query := "cur=USD"
	if filter.HasPriceRange() {
		query += fmt.Sprintf("&prc=r:%d,%d", *filter.MinPrice, *filter.MaxPrice)
	}
	u.RawQuery = query
	return u.String()
}

// Fetch возвращает извлечённые объявления; при любой ошибке — пустой результат.
func (f *Fetcher) Fetch(ctx context.Context, city string, filter domain.SearchFilter) []domain.Listing {
	target := f.SearchURL(city, filter)
	log := f.log.With().Str("city", city).Str("url", target).Logger()
	log.Info().Msg("kufar: запрос объявлений")

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	listings, err := f.fetch(ctx, target, city)
	metrics.ObserveNetworkRequest("kufar", "search", city, start, err)
	if err != nil {
		log.Error().Err(err).Msg("kufar: ошибка запроса")
		return nil
	}
	log.Info().Int("count", len(listings)).Msg("kufar: объявления получены")
	return listings
}

func (f *Fetcher) fetch(ctx context.Context, target, city string) ([]domain.Listing, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return f.extractor.Extract(io.LimitReader(resp.Body, maxBodyBytes), city)
}
