package domain

import "time"

// SourceKufar — метка источника объявлений re.kufar.by.
const SourceKufar = "Kufar"

// Значения по умолчанию для необязательных полей объявления.
const (
	DefaultAddress     = "Адрес не указан"
	DefaultDescription = "Описание не указано"
)

// Listing описывает одно объявление о квартире. Link — ключ дедупликации.
type Listing struct {
	Link        string  `json:"link"`
	Source      string  `json:"source"`
	City        string  `json:"city"`
	Price       int     `json:"price"`
	Rooms       *int    `json:"rooms"`
	Address     string  `json:"address"`
	Image       *string `json:"image"`
	Description string  `json:"description"`
}

// InboxListing — объявление из «входящих» конкретного запрашивающего.
type InboxListing struct {
	Listing
	UserID string `json:"user_id"`
}

// AdsQuery задаёт выборку из корпуса с окном offset/limit.
type AdsQuery struct {
	City   string
	Filter SearchFilter
	Offset int
	Limit  int
}

// AdsPage — окно выборки корпуса.
type AdsPage struct {
	Items      []Listing
	HasMore    bool
	NextOffset int
}

// ModerationStatus — состояние пользовательского объявления.
type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "pending"
	ModerationApproved ModerationStatus = "approved"
	ModerationRejected ModerationStatus = "rejected"
)

// ModerationAction — действие администратора над объявлением.
type ModerationAction string

const (
	ActionApprove ModerationAction = "approve"
	ActionReject  ModerationAction = "reject"
)

// ParseModerationAction проверяет строковое действие.
func ParseModerationAction(raw string) (ModerationAction, bool) {
	switch ModerationAction(raw) {
	case ActionApprove:
		return ActionApprove, true
	case ActionReject:
		return ActionReject, true
	default:
		return "", false
	}
}

// UserAd — объявление, поданное пользователем через мини-приложение.
type UserAd struct {
	ID          int64            `json:"id"`
	UserID      string           `json:"user_id"`
	Images      []string         `json:"images"`
	City        string           `json:"city"`
	Rooms       *int             `json:"rooms"`
	Price       int              `json:"price"`
	Address     string           `json:"address"`
	Description string           `json:"description"`
	Phone       string           `json:"phone"`
	CreatedAt   time.Time        `json:"timestamp"`
	Status      ModerationStatus `json:"status"`
}

// SweepTrigger описывает, кто инициировал проход.
type SweepTrigger string

const (
	TriggerScheduled SweepTrigger = "scheduled"
	TriggerAdHoc     SweepTrigger = "adhoc"
)

// SweepRequest — запрос на проход fetch→extract→filter→dedup.
// Пустой City означает все настроенные города.
type SweepRequest struct {
	City      string
	Filter    SearchFilter
	Requester string
	Trigger   SweepTrigger
}
