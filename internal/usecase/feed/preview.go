package feed

import (
	"strings"
	"unicode/utf8"
)

const previewLimit = 160

// Preview сжимает пробелы в тексте объявления и обрезает его до previewLimit символов
// по границе слова.
func Preview(body string) string {
	text := strings.Join(strings.Fields(body), " ")
	if utf8.RuneCountInString(text) <= previewLimit {
		return text
	}
	runes := []rune(text)[:previewLimit]
	cut := string(runes)
	if idx := strings.LastIndexByte(cut, ' '); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimRight(cut, " .,;:") + "…"
}
