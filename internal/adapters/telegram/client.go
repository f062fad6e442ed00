package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"apartment-bot/internal/domain"
	"apartment-bot/internal/infra/metrics"
)

// botAPI — часть *tgbotapi.BotAPI, которой пользуется клиент.
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error)
}

// Client реализует domain.Messenger поверх Bot API.
type Client struct {
	bot botAPI
	log zerolog.Logger
}

var _ domain.Messenger = (*Client)(nil)

// NewClient оборачивает бота.
func NewClient(bot *tgbotapi.BotAPI, log zerolog.Logger) *Client {
	return &Client{bot: bot, log: log}
}

func observe(op string, start time.Time, err error) {
	metrics.ObserveNetworkRequest("telegram", op, "bot_api", start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
	}
}

// SendMessage отправляет текст, разбивая его по лимиту Telegram. Клавиатура
// прикрепляется к последней части; возвращается её message_id.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string, keyboard domain.Keyboard) (int, error) {
	parts := SplitMessage(text)
	if len(parts) == 0 {
		return 0, fmt.Errorf("telegram: empty message")
	}
	var lastID int
	for i, part := range parts {
		if err := ctx.Err(); err != nil {
			return lastID, err
		}
		var kb domain.Keyboard
		if i == len(parts)-1 {
			kb = keyboard
		}
		id, err := c.sendOne(chatID, part, kb)
		if err != nil {
			c.log.Error().Err(err).Int64("chat_id", chatID).Msg("telegram: не удалось отправить сообщение")
			return lastID, err
		}
		lastID = id
	}
	return lastID, nil
}

func (c *Client) sendOne(chatID int64, text string, keyboard domain.Keyboard) (int, error) {
	start := time.Now()
	if hasWebApp(keyboard) {
		id, err := c.sendWithWebApp(chatID, text, keyboard)
		observe("sendMessage", start, err)
		return id, err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	if markup := inlineMarkup(keyboard); markup != nil {
		msg.ReplyMarkup = markup
	}
	sent, err := c.bot.Send(msg)
	observe("sendMessage", start, err)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// sendWithWebApp отправляет сообщение напрямую через sendMessage:
// типы клавиатуры библиотеки не знают о кнопках web_app.
func (c *Client) sendWithWebApp(chatID int64, text string, keyboard domain.Keyboard) (int, error) {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", chatID)
	params.AddNonEmpty("text", text)
	if err := params.AddInterface("reply_markup", rawMarkup(keyboard)); err != nil {
		return 0, err
	}
	resp, err := c.bot.MakeRequest("sendMessage", params)
	if err != nil {
		return 0, err
	}
	var sent tgbotapi.Message
	if err := json.Unmarshal(resp.Result, &sent); err != nil {
		return 0, fmt.Errorf("decode sendMessage result: %w", err)
	}
	return sent.MessageID, nil
}

// EditMessageText заменяет текст отправленного сообщения.
func (c *Client) EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	_, err := c.bot.Request(tgbotapi.NewEditMessageText(chatID, messageID, text))
	observe("editMessageText", start, err)
	return err
}

// RemoveReplyMarkup убирает встроенную клавиатуру сообщения.
func (c *Client) RemoveReplyMarkup(ctx context.Context, chatID int64, messageID int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	empty := tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{}}
	start := time.Now()
	_, err := c.bot.Request(tgbotapi.NewEditMessageReplyMarkup(chatID, messageID, empty))
	observe("editMessageReplyMarkup", start, err)
	return err
}

// AnswerCallback подтверждает нажатие кнопки.
func (c *Client) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()
	_, err := c.bot.Request(tgbotapi.NewCallback(callbackID, text))
	observe("answerCallbackQuery", start, err)
	return err
}

// SetWebhook регистрирует адрес приёма обновлений с secret_token, который Telegram
// возвращает в заголовке каждого апдейта. WebhookConfig библиотеки этого поля не знает,
// поэтому запрос собирается вручную.
func (c *Client) SetWebhook(ctx context.Context, webhookURL, secretToken string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	parsed, err := url.Parse(webhookURL)
	if err != nil || !parsed.IsAbs() {
		return fmt.Errorf("bad webhook url %q", webhookURL)
	}
	params := tgbotapi.Params{}
	params.AddNonEmpty("url", parsed.String())
	params.AddNonEmpty("secret_token", secretToken)
	start := time.Now()
	_, err = c.bot.MakeRequest("setWebhook", params)
	observe("setWebhook", start, err)
	return err
}

// SetCommands публикует список команд бота.
func (c *Client) SetCommands(ctx context.Context, commands map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	list := make([]tgbotapi.BotCommand, 0, len(names))
	for _, name := range names {
		list = append(list, tgbotapi.BotCommand{Command: name, Description: commands[name]})
	}
	start := time.Now()
	_, err := c.bot.Request(tgbotapi.NewSetMyCommands(list...))
	observe("setMyCommands", start, err)
	return err
}

func hasWebApp(keyboard domain.Keyboard) bool {
	for _, row := range keyboard {
		for _, b := range row {
			if b.WebApp != "" {
				return true
			}
		}
	}
	return false
}

func inlineMarkup(keyboard domain.Keyboard) *tgbotapi.InlineKeyboardMarkup {
	if len(keyboard) == 0 {
		return nil
	}
	rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(keyboard))
	for _, row := range keyboard {
		buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(buttons...))
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(rows...)
	return &markup
}

type webAppInfo struct {
	URL string `json:"url"`
}

type rawButton struct {
	Text         string      `json:"text"`
	CallbackData string      `json:"callback_data,omitempty"`
	WebApp       *webAppInfo `json:"web_app,omitempty"`
}

type rawKeyboard struct {
	InlineKeyboard [][]rawButton `json:"inline_keyboard"`
}

func rawMarkup(keyboard domain.Keyboard) rawKeyboard {
	out := rawKeyboard{InlineKeyboard: make([][]rawButton, 0, len(keyboard))}
	for _, row := range keyboard {
		buttons := make([]rawButton, 0, len(row))
		for _, b := range row {
			rb := rawButton{Text: b.Text, CallbackData: b.Data}
			if b.WebApp != "" {
				rb.WebApp = &webAppInfo{URL: b.WebApp}
				rb.CallbackData = ""
			}
			buttons = append(buttons, rb)
		}
		out.InlineKeyboard = append(out.InlineKeyboard, buttons)
	}
	return out
}
