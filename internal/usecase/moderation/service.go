// Package moderation ведёт пользовательские объявления от подачи до решения администратора.
package moderation

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/metrics"
)

const (
	submittedText = "Ваше объявление успешно отправлено на модерацию. Ожидайте решения администратора."
	timeLayout    = "2006-01-02 15:04:05"
)

// DeniedText — ответ не-администратору на попытку модерации.
const DeniedText = "У вас нет прав для модерации."

// Image — загруженный файл изображения.
type Image struct {
	Filename string
	Content  io.Reader
}

// SubmitRequest — данные формы подачи объявления.
type SubmitRequest struct {
	UserID      string
	City        string
	Rooms       *int
	Price       int
	Address     string
	Description string
	Phone       string
	Images      []Image
}

// Validate проверяет обязательные поля.
func (r SubmitRequest) Validate() error {
	switch {
	case strings.TrimSpace(r.UserID) == "":
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	case r.City == "":
		return fmt.Errorf("%w: city is required", domain.ErrValidation)
	case r.Price <= 0:
		return fmt.Errorf("%w: price must be positive", domain.ErrValidation)
	case strings.TrimSpace(r.Address) == "":
		return fmt.Errorf("%w: address is required", domain.ErrValidation)
	case r.Rooms != nil && *r.Rooms < 0:
		return fmt.Errorf("%w: rooms must not be negative", domain.ErrValidation)
	}
	if _, ok := domain.Cities[r.City]; !ok {
		return fmt.Errorf("%w: unknown city %q", domain.ErrValidation, r.City)
	}
	return nil
}

// Service — конечный автомат модерации.
type Service struct {
	ads       domain.UserAdRepo
	images    domain.ImageStore
	messenger domain.Messenger
	adminID   string
	log       zerolog.Logger
	now       func() time.Time
}

// NewService создаёт сервис модерации.
func NewService(ads domain.UserAdRepo, images domain.ImageStore, messenger domain.Messenger, adminID string, log zerolog.Logger) *Service {
	return &Service{
		ads:       ads,
		images:    images,
		messenger: messenger,
		adminID:   strings.TrimSpace(adminID),
		log:       log,
		now:       time.Now,
	}
}

// Submit сохраняет изображения, создаёт объявление в статусе pending и уведомляет
// администратора. Ошибки отправки сообщений только логируются.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (domain.UserAd, error) {
	if err := req.Validate(); err != nil {
		return domain.UserAd{}, err
	}
	log := s.log.With().Str("user_id", req.UserID).Str("city", req.City).Logger()

	var paths []string
	for _, img := range req.Images {
		path, err := s.images.Save(req.UserID, img.Filename, img.Content)
		if err != nil {
			s.removeFiles(paths)
			return domain.UserAd{}, fmt.Errorf("save image: %w", err)
		}
		paths = append(paths, path)
	}

	ad, err := s.ads.CreateUserAd(ctx, domain.UserAd{
		UserID:      req.UserID,
		Images:      paths,
		City:        req.City,
		Rooms:       req.Rooms,
		Price:       req.Price,
		Address:     strings.TrimSpace(req.Address),
		Description: strings.TrimSpace(req.Description),
		Phone:       strings.TrimSpace(req.Phone),
		CreatedAt:   s.now().UTC(),
		Status:      domain.ModerationPending,
	})
	if err != nil {
		s.removeFiles(paths)
		log.Error().Err(err).Msg("moderation: не удалось сохранить объявление")
		return domain.UserAd{}, fmt.Errorf("create user ad: %w", err)
	}
	metrics.ModerationActions.WithLabelValues("submit").Inc()

	s.notifyAdmin(ctx, log, ad)
	if chatID, ok := parseChatID(req.UserID); ok {
		if _, err := s.messenger.SendMessage(ctx, chatID, submittedText, nil); err != nil {
			log.Error().Err(err).Msg("moderation: не удалось уведомить автора")
		}
	} else {
		log.Warn().Msg("moderation: автор без chat id, подтверждение не отправлено")
	}
	log.Info().Int64("ad_id", ad.ID).Msg("moderation: объявление отправлено на модерацию")
	return ad, nil
}

func (s *Service) notifyAdmin(ctx context.Context, log zerolog.Logger, ad domain.UserAd) {
	chatID, ok := parseChatID(s.adminID)
	if !ok {
		log.Warn().Int64("ad_id", ad.ID).Msg("moderation: ADMIN_ID не задан, сообщение администратору не отправлено")
		return
	}
	kb := domain.Keyboard{{
		{Text: "Одобрить", Data: CallbackData(domain.ActionApprove, ad.ID)},
		{Text: "Отклонить", Data: CallbackData(domain.ActionReject, ad.ID)},
	}}
	if _, err := s.messenger.SendMessage(ctx, chatID, AdminSummary(ad), kb); err != nil {
		log.Error().Err(err).Int64("ad_id", ad.ID).Msg("moderation: не удалось отправить объявление администратору")
	}
}

// AdminSummary формирует сообщение администратору.
func AdminSummary(ad domain.UserAd) string {
	rooms := "Не указано"
	if ad.Rooms != nil {
		rooms = strconv.Itoa(*ad.Rooms)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Новое объявление на модерацию (ID: %d)\n", ad.ID)
	fmt.Fprintf(&b, "Город: %s\n", domain.CityName(ad.City))
	fmt.Fprintf(&b, "Комнаты: %s\n", rooms)
	fmt.Fprintf(&b, "Цена: %d USD\n", ad.Price)
	fmt.Fprintf(&b, "Адрес: %s\n", ad.Address)
	fmt.Fprintf(&b, "Описание: %s\n", ad.Description)
	fmt.Fprintf(&b, "Телефон: %s\n", ad.Phone)
	fmt.Fprintf(&b, "Время подачи: %s", ad.CreatedAt.Format(timeLayout))
	return b.String()
}

// CallbackData кодирует кнопку модерации как {action}_{id}.
func CallbackData(action domain.ModerationAction, id int64) string {
	return fmt.Sprintf("%s_%d", action, id)
}

// ParseCallbackData разбирает данные кнопки модерации.
func ParseCallbackData(data string) (domain.ModerationAction, int64, error) {
	rawAction, rawID, ok := strings.Cut(data, "_")
	if !ok {
		return "", 0, fmt.Errorf("%w: malformed callback %q", domain.ErrValidation, data)
	}
	action, ok := domain.ParseModerationAction(rawAction)
	if !ok {
		return "", 0, fmt.Errorf("%w: unknown action %q", domain.ErrValidation, rawAction)
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return "", 0, fmt.Errorf("%w: bad ad id %q", domain.ErrValidation, rawID)
	}
	return action, id, nil
}

// ResultText — текст, которым заменяется сообщение администратора после решения.
func ResultText(action domain.ModerationAction, id int64) string {
	verdict := "отклонено"
	if action == domain.ActionApprove {
		verdict = "одобрено"
	}
	return fmt.Sprintf("Объявление %d %s", id, verdict)
}

func (s *Service) authorize(actor string) error {
	if domain.RoleFor(actor, s.adminID) != domain.RoleAdmin {
		return domain.ErrPermissionDenied
	}
	return nil
}

// Moderate применяет решение администратора. approve переводит pending в approved,
// reject удаляет запись (только из pending), затем её файлы.
func (s *Service) Moderate(ctx context.Context, actor string, adID int64, action domain.ModerationAction) error {
	if err := s.authorize(actor); err != nil {
		s.log.Warn().Str("actor", actor).Int64("ad_id", adID).Msg("moderation: попытка модерации без прав")
		return err
	}
	if _, ok := domain.ParseModerationAction(string(action)); !ok {
		return fmt.Errorf("%w: unknown action %q", domain.ErrValidation, action)
	}
	ad, err := s.ads.GetUserAd(ctx, adID)
	if err != nil {
		return err
	}
	log := s.log.With().Int64("ad_id", adID).Str("action", string(action)).Logger()

	switch action {
	case domain.ActionApprove:
		if ad.Status == domain.ModerationApproved {
			return nil
		}
		if err := s.ads.UpdateUserAdStatus(ctx, adID, domain.ModerationPending, domain.ModerationApproved); err != nil {
			return err
		}
	case domain.ActionReject:
		if ad.Status != domain.ModerationPending {
			return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, ad.Status, domain.ModerationRejected)
		}
		// статус перепроверяется в самом DELETE: одобрение могло успеть раньше
		if err := s.ads.DeleteUserAdIfStatus(ctx, adID, domain.ModerationPending); err != nil {
			return err
		}
		s.removeFiles(ad.Images)
	}
	metrics.ModerationActions.WithLabelValues(string(action)).Inc()
	log.Info().Msg("moderation: решение применено")
	return nil
}

// Delete удаляет объявление в любом статусе. Только для администратора.
func (s *Service) Delete(ctx context.Context, actor string, adID int64) error {
	if err := s.authorize(actor); err != nil {
		s.log.Warn().Str("actor", actor).Int64("ad_id", adID).Msg("moderation: попытка удаления без прав")
		return err
	}
	ad, err := s.ads.GetUserAd(ctx, adID)
	if err != nil {
		return err
	}
	if err := s.ads.DeleteUserAd(ctx, ad.ID); err != nil {
		return fmt.Errorf("delete user ad: %w", err)
	}
	s.removeFiles(ad.Images)
	metrics.ModerationActions.WithLabelValues("delete").Inc()
	s.log.Info().Int64("ad_id", adID).Msg("moderation: объявление удалено")
	return nil
}

func (s *Service) removeFiles(paths []string) {
	for _, p := range paths {
		if err := s.images.Remove(p); err != nil {
			s.log.Warn().Err(err).Str("path", p).Msg("moderation: не удалось удалить файл")
		}
	}
}

// ListApproved возвращает одобренные объявления, новые первыми, с изображениями
// в виде data URI. Нечитаемые файлы пропускаются.
func (s *Service) ListApproved(ctx context.Context) ([]domain.UserAd, error) {
	ads, err := s.ads.ListUserAdsByStatus(ctx, domain.ModerationApproved)
	if err != nil {
		return nil, err
	}
	for i := range ads {
		inlined := make([]string, 0, len(ads[i].Images))
		for _, path := range ads[i].Images {
			uri, err := s.dataURI(path)
			if err != nil {
				s.log.Warn().Err(err).Str("path", path).Int64("ad_id", ads[i].ID).Msg("moderation: изображение недоступно")
				continue
			}
			inlined = append(inlined, uri)
		}
		ads[i].Images = inlined
	}
	return ads, nil
}

func (s *Service) dataURI(path string) (string, error) {
	rc, err := s.images.Open(path)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(data), nil
}

func parseChatID(id string) (int64, bool) {
	if !domain.IsChatID(id) {
		return 0, false
	}
	v, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
