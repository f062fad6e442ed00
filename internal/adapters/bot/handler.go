package bot

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/usecase/moderation"
)

const (
	startText   = "Добро пожаловать! Откройте приложение для поиска квартир:"
	startButton = "Открыть поиск квартир"
)

// Commands — меню команд бота.
var Commands = map[string]string{
	"start": "Запустить поиск квартир",
}

// Moderator применяет решение по объявлению.
type Moderator interface {
	Moderate(ctx context.Context, actor string, adID int64, action domain.ModerationAction) error
}

// SecretTokenHeader — заголовок, в котором Telegram присылает secret_token вебхука.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Handler обрабатывает апдейты Telegram.
type Handler struct {
	messenger     domain.Messenger
	moderation    Moderator
	miniAppURL    string
	webhookSecret string
	log           zerolog.Logger
}

// NewHandler создаёт обработчик. miniAppURL — адрес мини-приложения без параметров,
// webhookSecret — secret_token, с которым зарегистрирован вебхук.
func NewHandler(messenger domain.Messenger, mod Moderator, miniAppURL, webhookSecret string, log zerolog.Logger) *Handler {
	return &Handler{messenger: messenger, moderation: mod, miniAppURL: miniAppURL, webhookSecret: webhookSecret, log: log}
}

// ServeHTTP принимает апдейт вебхука. Запросы без верного secret_token отклоняются,
// на корректный JSON Telegram всегда получает 200.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	got := r.Header.Get(SecretTokenHeader)
	if h.webhookSecret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(h.webhookSecret)) != 1 {
		h.log.Warn().Str("remote", r.RemoteAddr).Msg("bot: апдейт без верного secret_token")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var upd tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		h.log.Warn().Err(err).Msg("bot: некорректный апдейт")
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.HandleUpdate(r.Context(), upd)
	w.WriteHeader(http.StatusOK)
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	} else {
		h.log.Debug().Int("update_id", upd.UpdateID).Msg("bot: пустой апдейт")
	}
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.Chat == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"):
		h.handleStart(ctx, msg)
	default:
		h.log.Debug().Int64("chat_id", msg.Chat.ID).Msg("bot: сообщение без команды пропущено")
	}
}

func (h *Handler) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.Chat.ID
	if msg.From != nil {
		userID = msg.From.ID
	}
	h.log.Info().Int64("user_id", userID).Msg("bot: команда /start")
	kb := domain.Keyboard{{{Text: startButton, WebApp: MiniAppLink(h.miniAppURL, userID)}}}
	if _, err := h.messenger.SendMessage(ctx, msg.Chat.ID, startText, kb); err != nil {
		h.log.Error().Err(err).Int64("chat_id", msg.Chat.ID).Msg("bot: не удалось ответить на /start")
	}
}

// MiniAppLink добавляет user_id к адресу мини-приложения.
func MiniAppLink(base string, userID int64) string {
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "user_id=" + strconv.FormatInt(userID, 10)
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if err := h.messenger.AnswerCallback(ctx, cb.ID, ""); err != nil {
		h.log.Warn().Err(err).Msg("bot: не удалось ответить на callback")
	}
	if cb.Message == nil || cb.Message.Chat == nil || cb.From == nil {
		h.log.Warn().Str("data", cb.Data).Msg("bot: callback без сообщения")
		return
	}
	chatID := cb.Message.Chat.ID
	messageID := cb.Message.MessageID
	actor := strconv.FormatInt(cb.From.ID, 10)

	action, adID, err := moderation.ParseCallbackData(cb.Data)
	if err != nil {
		h.log.Warn().Err(err).Str("data", cb.Data).Msg("bot: неизвестный callback")
		return
	}
	log := h.log.With().Int64("ad_id", adID).Str("action", string(action)).Str("actor", actor).Logger()

	err = h.moderation.Moderate(ctx, actor, adID, action)
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		h.editText(ctx, log, chatID, messageID, moderation.DeniedText)
	case err != nil:
		log.Error().Err(err).Msg("bot: ошибка модерации")
		h.editText(ctx, log, chatID, messageID, fmt.Sprintf("Ошибка при обработке объявления %d", adID))
	default:
		if err := h.messenger.RemoveReplyMarkup(ctx, chatID, messageID); err != nil {
			log.Warn().Err(err).Msg("bot: не удалось убрать клавиатуру")
		}
		h.editText(ctx, log, chatID, messageID, moderation.ResultText(action, adID))
	}
}

func (h *Handler) editText(ctx context.Context, log zerolog.Logger, chatID int64, messageID int, text string) {
	if err := h.messenger.EditMessageText(ctx, chatID, messageID, text); err != nil {
		log.Error().Err(err).Msg("bot: не удалось изменить сообщение")
	}
}
