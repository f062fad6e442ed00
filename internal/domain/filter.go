package domain

import "fmt"

// SearchFilter — ограничения по цене и количеству комнат. nil означает отсутствие ограничения.
type SearchFilter struct {
	MinPrice *int
	MaxPrice *int
	Rooms    *int
}

// Allows решает, проходит ли объявление фильтр.
// Без цены объявление не проходит никогда; при заданном Rooms неизвестное число комнат не проходит.
// Ноль комнат (студия) — обычное значение и совпадает только с Rooms == 0.
func (f SearchFilter) Allows(price, rooms *int) bool {
	if price == nil {
		return false
	}
	if f.MinPrice != nil && *price < *f.MinPrice {
		return false
	}
	if f.MaxPrice != nil && *price > *f.MaxPrice {
		return false
	}
	if f.Rooms != nil {
		return rooms != nil && *rooms == *f.Rooms
	}
	return true
}

// Apply оставляет только прошедшие фильтр объявления, сохраняя порядок.
func (f SearchFilter) Apply(batch []Listing) []Listing {
	out := make([]Listing, 0, len(batch))
	for _, l := range batch {
		price := l.Price
		if f.Allows(&price, l.Rooms) {
			out = append(out, l)
		}
	}
	return out
}

// HasPriceRange сообщает, заданы ли обе границы цены.
func (f SearchFilter) HasPriceRange() bool {
	return f.MinPrice != nil && f.MaxPrice != nil
}

// IsZero сообщает, что ни одно ограничение не задано.
func (f SearchFilter) IsZero() bool {
	return f.MinPrice == nil && f.MaxPrice == nil && f.Rooms == nil
}

// Key возвращает стабильное строковое представление фильтра.
func (f SearchFilter) Key() string {
	return fmt.Sprintf("%s:%s:%s", intKey(f.MinPrice), intKey(f.MaxPrice), intKey(f.Rooms))
}

func intKey(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprint(*v)
}
