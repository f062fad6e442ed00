package telegram

import "strings"

// messageLimit - лимит Telegram на длину текста в символах (не байтах).
const messageLimit = 4096

// SplitMessage режет текст на части не длиннее messageLimit символов.
// Сначала ищется граница абзаца, затем перевод строки, затем пробел;
// слово без пробелов длиннее лимита режется посимвольно.
func SplitMessage(text string) []string {
	rest := []rune(strings.TrimSpace(text))
	var parts []string
	for len(rest) > 0 {
		if len(rest) <= messageLimit {
			parts = append(parts, string(rest))
			break
		}
		cut := cutPoint(rest[:messageLimit])
		if chunk := strings.TrimSpace(string(rest[:cut])); chunk != "" {
			parts = append(parts, chunk)
		}
		rest = []rune(strings.TrimLeft(string(rest[cut:]), " \n"))
	}
	return parts
}

// cutPoint возвращает позицию разреза внутри окна.
func cutPoint(window []rune) int {
	s := string(window)
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(s, sep); i > 0 {
			return len([]rune(s[:i]))
		}
	}
	return len(window)
}
