// Package api описывает HTTP API мини-приложения.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	chi "github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"apartment-bot/internal/domain"
	httpinfra "apartment-bot/internal/infra/http"
	"apartment-bot/internal/usecase/moderation"
)

const maxPageSize = 100

// Sweeps запускает разовый проход перед чтением.
type Sweeps interface {
	Trigger(ctx context.Context, req domain.SweepRequest) (int, error)
}

// Moderation — операции над пользовательскими объявлениями.
type Moderation interface {
	Submit(ctx context.Context, req moderation.SubmitRequest) (domain.UserAd, error)
	Moderate(ctx context.Context, actor string, adID int64, action domain.ModerationAction) error
	Delete(ctx context.Context, actor string, adID int64) error
	ListApproved(ctx context.Context) ([]domain.UserAd, error)
}

// Options задаёт параметры API.
type Options struct {
	PageSize       int
	MaxUploadBytes int64
	StaticDir      string
}

// Handler обслуживает маршруты /api и /mini-app.
type Handler struct {
	store      domain.ListingStore
	sweeps     Sweeps
	moderation Moderation
	opts       Options
	log        zerolog.Logger
}

// NewHandler создаёт обработчик.
func NewHandler(store domain.ListingStore, sweeps Sweeps, mod Moderation, opts Options, log zerolog.Logger) *Handler {
	if opts.PageSize <= 0 {
		opts.PageSize = 7
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 20 << 20
	}
	return &Handler{store: store, sweeps: sweeps, moderation: mod, opts: opts, log: log}
}

// Routes регистрирует маршруты. middlewares применяются только к /api.
func (h *Handler) Routes(r chi.Router, middlewares ...func(http.Handler) http.Handler) {
	r.Route("/api", func(api chi.Router) {
		api.Use(middlewares...)
		api.Get("/ads", h.listAds)
		api.Get("/new_ads", h.listInbox)
		api.Post("/reset_new_ads", h.resetInbox)
		api.Post("/submit_user_ad", h.submitUserAd)
		api.Get("/user_ads", h.listUserAds)
		api.Delete("/delete_user_ad", h.deleteUserAd)
		api.Post("/moderate_ad", h.moderateAd)
	})
	r.Get("/mini-app", h.miniApp)
}

type adRow struct {
	domain.Listing
	HasMore    bool `json:"has_more"`
	NextOffset int  `json:"next_offset"`
}

func (h *Handler) listAds(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter, err := parseFilter(q.Get)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offset, err := optionalInt(q.Get("offset"), "offset")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := optionalInt(q.Get("limit"), "limit")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	query := domain.AdsQuery{City: q.Get("city"), Filter: filter, Limit: h.opts.PageSize}
	if offset != nil {
		if *offset < 0 {
			h.writeError(w, r, fmt.Errorf("%w: offset must not be negative", domain.ErrValidation))
			return
		}
		query.Offset = *offset
	}
	if limit != nil {
		if *limit <= 0 {
			h.writeError(w, r, fmt.Errorf("%w: limit must be positive", domain.ErrValidation))
			return
		}
		query.Limit = min(*limit, maxPageSize)
	}

	requester, err := identity(r, q.Get("user_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if _, known := domain.Cities[query.City]; known && domain.IsChatID(requester) && h.sweeps != nil {
		_, err := h.sweeps.Trigger(r.Context(), domain.SweepRequest{
			City:      query.City,
			Filter:    filter,
			Requester: requester,
			Trigger:   domain.TriggerAdHoc,
		})
		if err != nil {
			h.log.Warn().Err(err).Str("city", query.City).Str("user_id", requester).Msg("api: разовый проход завершился с ошибкой")
		}
	}

	page, err := h.store.ListAds(r.Context(), query)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rows := make([]adRow, 0, len(page.Items))
	for _, item := range page.Items {
		rows = append(rows, adRow{Listing: item, HasMore: page.HasMore, NextOffset: page.NextOffset})
	}
	httpinfra.WriteJSON(w, http.StatusOK, rows)
}

func (h *Handler) listInbox(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterOf(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.store.ListInbox(r.Context(), requester)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, items)
}

func (h *Handler) resetInbox(w http.ResponseWriter, r *http.Request) {
	requester, err := requesterOf(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.store.ResetInbox(r.Context(), requester); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

type submitResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

func (h *Handler) submitUserAd(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: multipart form: %v", domain.ErrValidation, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	req, err := parseSubmit(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.UserID, err = identity(r, req.UserID); err != nil {
		h.writeError(w, r, err)
		return
	}
	for _, fh := range r.MultipartForm.File["images"] {
		f, err := fh.Open()
		if err != nil {
			h.writeError(w, r, fmt.Errorf("%w: open image %s: %v", domain.ErrValidation, fh.Filename, err))
			return
		}
		defer f.Close()
		req.Images = append(req.Images, moderation.Image{Filename: filepath.Base(fh.Filename), Content: f})
	}

	ad, err := h.moderation.Submit(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, submitResponse{
		Status:  string(domain.ModerationPending),
		Message: "Объявление отправлено на модерацию",
		ID:      ad.ID,
	})
}

func parseSubmit(r *http.Request) (moderation.SubmitRequest, error) {
	req := moderation.SubmitRequest{
		UserID:      strings.TrimSpace(r.FormValue("user_id")),
		City:        strings.TrimSpace(r.FormValue("city")),
		Address:     r.FormValue("address"),
		Description: r.FormValue("description"),
		Phone:       r.FormValue("phone"),
	}
	rooms, err := optionalInt(r.FormValue("rooms"), "rooms")
	if err != nil {
		return req, err
	}
	req.Rooms = rooms
	price, err := optionalInt(r.FormValue("price"), "price")
	if err != nil {
		return req, err
	}
	if price == nil {
		return req, fmt.Errorf("%w: price is required", domain.ErrValidation)
	}
	req.Price = *price
	return req, nil
}

func (h *Handler) listUserAds(w http.ResponseWriter, r *http.Request) {
	ads, err := h.moderation.ListApproved(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	httpinfra.WriteJSON(w, http.StatusOK, ads)
}

func (h *Handler) deleteUserAd(w http.ResponseWriter, r *http.Request) {
	id, err := adID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	actor, err := identity(r, r.URL.Query().Get("user_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.moderation.Delete(r.Context(), actor, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) moderateAd(w http.ResponseWriter, r *http.Request) {
	id, err := adID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	actor, err := identity(r, q.Get("user_id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	action := domain.ModerationAction(q.Get("action"))
	if err := h.moderation.Moderate(r.Context(), actor, id, action); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *Handler) miniApp(w http.ResponseWriter, r *http.Request) {
	if h.opts.StaticDir == "" {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.opts.StaticDir, "index.html"))
}

// identity возвращает идентификатор вызывающего. Если initData проверен, id берётся
// из него, а расходящийся с ним user_id запроса отклоняется.
func identity(r *http.Request, claimed string) (string, error) {
	claimed = strings.TrimSpace(claimed)
	id, ok := httpinfra.WebAppUserID(r.Context())
	if !ok {
		return claimed, nil
	}
	if claimed != "" && claimed != id {
		return "", fmt.Errorf("%w: user_id %s does not match init data", domain.ErrPermissionDenied, claimed)
	}
	return id, nil
}

func requesterOf(r *http.Request) (string, error) {
	id, err := identity(r, r.URL.Query().Get("user_id"))
	if err != nil {
		return "", err
	}
	if id == "" {
		return domain.DefaultRequester, nil
	}
	return id, nil
}

func adID(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("ad_id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: bad ad_id %q", domain.ErrValidation, raw)
	}
	return id, nil
}

func optionalInt(raw, field string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an integer", domain.ErrValidation, field)
	}
	return &v, nil
}

func parseFilter(get func(string) string) (domain.SearchFilter, error) {
	var (
		f   domain.SearchFilter
		err error
	)
	if f.MinPrice, err = optionalInt(get("min_price"), "min_price"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = optionalInt(get("max_price"), "max_price"); err != nil {
		return f, err
	}
	if f.Rooms, err = optionalInt(get("rooms"), "rooms"); err != nil {
		return f, err
	}
	return f, nil
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		httpinfra.WriteError(w, http.StatusBadRequest, "validation", err)
	case errors.Is(err, domain.ErrPermissionDenied):
		httpinfra.WriteError(w, http.StatusForbidden, "permission_denied", err)
	case errors.Is(err, domain.ErrUserAdNotFound):
		httpinfra.WriteError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, domain.ErrInvalidTransition):
		httpinfra.WriteError(w, http.StatusConflict, "invalid_transition", err)
	default:
		h.log.Error().Err(err).Str("request_id", httpinfra.RequestID(r)).Str("path", r.URL.Path).Msg("api: внутренняя ошибка")
		httpinfra.WriteError(w, http.StatusInternalServerError, "internal", errors.New("internal error"))
	}
}
