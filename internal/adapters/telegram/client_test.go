package telegram

import (
	"context"
	"errors"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"apartment-bot/internal/domain"
)

type stubBot struct {
	sent      []tgbotapi.MessageConfig
	requests  []tgbotapi.Chattable
	raw       []tgbotapi.Params
	endpoints []string
	nextID    int
	sendErr   error
}

func (s *stubBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if s.sendErr != nil {
		return tgbotapi.Message{}, s.sendErr
	}
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		s.sent = append(s.sent, msg)
	}
	s.nextID++
	return tgbotapi.Message{MessageID: s.nextID}, nil
}

func (s *stubBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	s.requests = append(s.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (s *stubBot) MakeRequest(endpoint string, params tgbotapi.Params) (*tgbotapi.APIResponse, error) {
	s.raw = append(s.raw, params)
	s.endpoints = append(s.endpoints, endpoint)
	s.nextID++
	return &tgbotapi.APIResponse{Ok: true, Result: []byte(`{"message_id":77}`)}, nil
}

func newTestClient(bot *stubBot) *Client {
	return &Client{bot: bot, log: zerolog.Nop()}
}

func TestSendMessageWithCallbackKeyboard(t *testing.T) {
	bot := &stubBot{}
	client := newTestClient(bot)
	kb := domain.Keyboard{{
		{Text: "Одобрить", Data: "approve_7"},
		{Text: "Отклонить", Data: "reject_7"},
	}}

	id, err := client.SendMessage(context.Background(), 100, "Новое объявление", kb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 1 {
		t.Fatalf("expected message id 1, got %d", id)
	}
	if len(bot.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(bot.sent))
	}
	markup, ok := bot.sent[0].ReplyMarkup.(*tgbotapi.InlineKeyboardMarkup)
	if !ok {
		t.Fatalf("expected inline markup, got %T", bot.sent[0].ReplyMarkup)
	}
	row := markup.InlineKeyboard[0]
	if len(row) != 2 || *row[0].CallbackData != "approve_7" || *row[1].CallbackData != "reject_7" {
		t.Fatalf("unexpected buttons %+v", row)
	}
}

func TestSendMessageWebAppUsesRawRequest(t *testing.T) {
	bot := &stubBot{}
	client := newTestClient(bot)
	kb := domain.Keyboard{{{Text: "Открыть поиск квартир", WebApp: "https://example.org/mini-app?user_id=5"}}}

	id, err := client.SendMessage(context.Background(), 5, "Добро пожаловать!", kb)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id != 77 {
		t.Fatalf("expected id from raw response, got %d", id)
	}
	if len(bot.raw) != 1 || len(bot.sent) != 0 {
		t.Fatalf("expected raw request only, got raw=%d sent=%d", len(bot.raw), len(bot.sent))
	}
	params := bot.raw[0]
	if params["chat_id"] != "5" {
		t.Fatalf("unexpected chat_id %q", params["chat_id"])
	}
	if !strings.Contains(params["reply_markup"], `"web_app":{"url":"https://example.org/mini-app?user_id=5"}`) {
		t.Fatalf("reply_markup lacks web_app button: %s", params["reply_markup"])
	}
	if strings.Contains(params["reply_markup"], "callback_data") {
		t.Fatalf("web_app button must not carry callback data: %s", params["reply_markup"])
	}
}

func TestSendMessageSplitsLongText(t *testing.T) {
	bot := &stubBot{}
	client := newTestClient(bot)
	text := strings.Repeat("a", 4000) + "\n" + strings.Repeat("b", 200)
	kb := domain.Keyboard{{{Text: "ok", Data: "ok"}}}

	id, err := client.SendMessage(context.Background(), 1, text, kb)
	if err != nil {
		t.Fatal(err)
	}
	if len(bot.sent) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(bot.sent))
	}
	if bot.sent[0].ReplyMarkup != nil {
		t.Fatal("keyboard must be attached to the last part only")
	}
	if bot.sent[1].ReplyMarkup == nil {
		t.Fatal("last part must carry the keyboard")
	}
	if id != 2 {
		t.Fatalf("expected id of last part, got %d", id)
	}
}

func TestSendMessageError(t *testing.T) {
	bot := &stubBot{sendErr: errors.New("Forbidden: bot was blocked by the user")}
	client := newTestClient(bot)
	if _, err := client.SendMessage(context.Background(), 1, "hi", nil); err == nil {
		t.Fatal("expected error")
	}
	if _, err := client.SendMessage(context.Background(), 1, "   ", nil); err == nil {
		t.Fatal("expected error for empty text")
	}
}

func TestSetCommandsAndEdits(t *testing.T) {
	bot := &stubBot{}
	client := newTestClient(bot)
	ctx := context.Background()

	if err := client.SetCommands(ctx, map[string]string{"start": "Запустить поиск квартир"}); err != nil {
		t.Fatal(err)
	}
	if err := client.EditMessageText(ctx, 1, 2, "Объявление 3 одобрено"); err != nil {
		t.Fatal(err)
	}
	if err := client.RemoveReplyMarkup(ctx, 1, 2); err != nil {
		t.Fatal(err)
	}
	if err := client.AnswerCallback(ctx, "cb", ""); err != nil {
		t.Fatal(err)
	}
	if len(bot.requests) != 4 {
		t.Fatalf("expected 4 requests, got %d", len(bot.requests))
	}
	cmds, ok := bot.requests[0].(tgbotapi.SetMyCommandsConfig)
	if !ok || len(cmds.Commands) != 1 || cmds.Commands[0].Command != "start" {
		t.Fatalf("unexpected commands request %#v", bot.requests[0])
	}
	edit, ok := bot.requests[1].(tgbotapi.EditMessageTextConfig)
	if !ok || edit.Text != "Объявление 3 одобрено" || edit.MessageID != 2 {
		t.Fatalf("unexpected edit request %#v", bot.requests[1])
	}
}

func TestCancelledContext(t *testing.T) {
	bot := &stubBot{}
	client := newTestClient(bot)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := client.SendMessage(ctx, 1, "hi", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(bot.sent) != 0 {
		t.Fatal("nothing must be sent after cancellation")
	}
}

func TestSetWebhookSendsSecretToken(t *testing.T) {
	bot := &stubBot{}
	client := newTestClient(bot)

	if err := client.SetWebhook(context.Background(), "https://bot.example.org/webhook", "s3cret"); err != nil {
		t.Fatal(err)
	}
	if len(bot.endpoints) != 1 || bot.endpoints[0] != "setWebhook" {
		t.Fatalf("expected setWebhook call, got %v", bot.endpoints)
	}
	params := bot.raw[0]
	if params["url"] != "https://bot.example.org/webhook" || params["secret_token"] != "s3cret" {
		t.Fatalf("unexpected webhook params %v", params)
	}

	if err := client.SetWebhook(context.Background(), "/webhook", "s3cret"); err == nil {
		t.Fatal("relative webhook url must be rejected")
	}
}
