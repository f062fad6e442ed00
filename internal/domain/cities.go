package domain

import "strings"

// DefaultRequester — идентификатор запрашивающего по умолчанию (плановые проходы).
const DefaultRequester = "default"

// Cities сопоставляет slug города на Kufar с его названием.
var Cities = map[string]string{
	"minsk":   "Минск",
	"brest":   "Брест",
	"grodno":  "Гродно",
	"gomel":   "Гомель",
	"vitebsk": "Витебск",
	"mogilev": "Могилев",
}

// CityName возвращает название города или сам slug, если город неизвестен.
func CityName(slug string) string {
	if name, ok := Cities[slug]; ok {
		return name
	}
	return slug
}

// IsChatID сообщает, является ли идентификатор числовым chat id Telegram.
// Id групп и каналов отрицательные.
func IsChatID(id string) bool {
	digits := strings.TrimPrefix(id, "-")
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
