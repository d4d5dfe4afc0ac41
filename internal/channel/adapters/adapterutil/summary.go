// Package adapterutil holds helpers shared by the platform adapters and the relay.
package adapterutil

import (
	"strings"
	"unicode/utf8"
)

const summaryLimit = 120

// SummarizeText returns a single-line preview of text for log records, cut at 120 runes.
func SummarizeText(text string) string {
	value := strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(value) <= summaryLimit {
		return value
	}
	runes := []rune(value)
	return string(runes[:summaryLimit]) + "..."
}
