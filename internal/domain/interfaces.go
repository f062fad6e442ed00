package domain

import (
	"context"
	"io"
	"time"
)

// Fetcher получает объявления из источника. Ошибки источника не возвращаются:
// при сбое результат пустой.
type Fetcher interface {
	Fetch(ctx context.Context, city string, filter SearchFilter) []Listing
}

// ListingStore — корпус объявлений и «входящие» запрашивающих.
type ListingStore interface {
	// StoreBatch атомарно вычисляет новые для requester объявления (те, что он
	// ещё не видел), кладёт их во «входящие» requester и дописывает весь batch в корпус.
	StoreBatch(ctx context.Context, requester string, batch []Listing) ([]Listing, error)
	ListAds(ctx context.Context, q AdsQuery) (AdsPage, error)
	ListInbox(ctx context.Context, requester string) ([]InboxListing, error)
	ResetInbox(ctx context.Context, requester string) error
}

// UserAdRepo хранит пользовательские объявления.
type UserAdRepo interface {
	CreateUserAd(ctx context.Context, ad UserAd) (UserAd, error)
	GetUserAd(ctx context.Context, id int64) (UserAd, error)
	UpdateUserAdStatus(ctx context.Context, id int64, from, to ModerationStatus) error
	DeleteUserAd(ctx context.Context, id int64) error
	DeleteUserAdIfStatus(ctx context.Context, id int64, status ModerationStatus) error
	ListUserAdsByStatus(ctx context.Context, status ModerationStatus) ([]UserAd, error)
}

// ImageStore хранит файлы изображений пользовательских объявлений.
type ImageStore interface {
	Save(userID, filename string, r io.Reader) (string, error)
	Open(path string) (io.ReadCloser, error)
	Remove(path string) error
}

// Button — кнопка встроенной клавиатуры.
type Button struct {
	Text   string
	Data   string
	WebApp string
}

// Keyboard — встроенная клавиатура сообщения, построчно.
type Keyboard [][]Button

// Messenger — внешний канал доставки сообщений (Telegram Bot API).
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string, keyboard Keyboard) (int, error)
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string) error
	RemoveReplyMarkup(ctx context.Context, chatID int64, messageID int) error
	AnswerCallback(ctx context.Context, callbackID, text string) error
	SetWebhook(ctx context.Context, url, secretToken string) error
	SetCommands(ctx context.Context, commands map[string]string) error
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}
