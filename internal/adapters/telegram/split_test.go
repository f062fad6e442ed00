package telegram

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"
)

func adminSummary(description string) string {
	return "Новое объявление на модерацию (ID: 42)\n" +
		"Город: Минск\n" +
		"Комнаты: 2\n" +
		"Цена: 450 USD\n" +
		"Адрес: ул. Сурганова, 5\n" +
		"Описание: " + description + "\n" +
		"Телефон: +375291234567\n" +
		"Время подачи: 19.10.2026 12:00"
}

func TestSplitMessageLongAdminSummary(t *testing.T) {
	description := strings.TrimSpace(strings.Repeat("светлая квартира рядом с метро ", 300))
	text := adminSummary(description)
	if utf8.RuneCountInString(text) <= messageLimit {
		t.Fatalf("текст должен превышать лимит, символов: %d", utf8.RuneCountInString(text))
	}

	parts := SplitMessage(text)
	if len(parts) < 2 {
		t.Fatalf("ожидали несколько частей, получили %d", len(parts))
	}
	for i, part := range parts {
		if n := utf8.RuneCountInString(part); n > messageLimit {
			t.Fatalf("часть %d длиннее лимита: %d", i, n)
		}
	}
	if !strings.HasPrefix(parts[0], "Новое объявление на модерацию (ID: 42)") {
		t.Fatalf("первая часть должна начинаться с заголовка: %q", parts[0][:60])
	}
	if !strings.HasSuffix(parts[len(parts)-1], "Время подачи: 19.10.2026 12:00") {
		t.Fatalf("последняя часть должна заканчиваться временем подачи")
	}

	got := strings.Fields(strings.Join(parts, " "))
	want := strings.Fields(text)
	if len(got) != len(want) {
		t.Fatalf("слова потеряны или разрезаны: %d вместо %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("слово %d: %q вместо %q", i, got[i], want[i])
		}
	}
}

func TestSplitMessageKeepsListingBlocks(t *testing.T) {
	var blocks []string
	for i := 1; i <= 60; i++ {
		blocks = append(blocks, fmt.Sprintf(
			"Объявление %d\nЦена: %d USD\nАдрес: пр. Независимости, %d\n%s",
			i, 300+i, i, strings.Repeat("описание ", 10)))
	}
	text := strings.Join(blocks, "\n\n")

	parts := SplitMessage(text)
	if len(parts) < 2 {
		t.Fatalf("ожидали несколько частей, получили %d", len(parts))
	}
	total := 0
	for i, part := range parts {
		if n := utf8.RuneCountInString(part); n > messageLimit {
			t.Fatalf("часть %d длиннее лимита: %d", i, n)
		}
		if !strings.HasPrefix(part, "Объявление ") {
			t.Fatalf("часть %d начинается не с объявления: %q", i, part[:40])
		}
		total += strings.Count(part, "Объявление ")
	}
	if total != len(blocks) {
		t.Fatalf("объявлений после разбиения %d, ожидали %d", total, len(blocks))
	}
}

func TestSplitMessageHardCutsLongWord(t *testing.T) {
	text := strings.Repeat("ж", messageLimit+904)
	parts := SplitMessage(text)
	if len(parts) != 2 {
		t.Fatalf("ожидали 2 части, получили %d", len(parts))
	}
	if n := utf8.RuneCountInString(parts[0]); n != messageLimit {
		t.Fatalf("первая часть: %d символов", n)
	}
	if n := utf8.RuneCountInString(parts[1]); n != 904 {
		t.Fatalf("вторая часть: %d символов", n)
	}
}

func TestSplitMessageShortText(t *testing.T) {
	text := adminSummary("без животных")
	parts := SplitMessage(text)
	if len(parts) != 1 || parts[0] != text {
		t.Fatalf("короткий текст должен уйти одной частью: %v", parts)
	}
}

func TestSplitMessageEmpty(t *testing.T) {
	if parts := SplitMessage("   \n  "); len(parts) != 0 {
		t.Fatalf("пустой текст не должен давать частей, получили %d", len(parts))
	}
}
