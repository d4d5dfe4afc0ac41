package adapterutil

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSummarizeText(t *testing.T) {
	if got := SummarizeText("  hello\n  world  "); got != "hello world" {
		t.Fatalf("got %q", got)
	}
	if got := SummarizeText(""); got != "" {
		t.Fatalf("got %q", got)
	}

	long := strings.Repeat("é", 200)
	got := SummarizeText(long)
	if !utf8.ValidString(got) {
		t.Fatal("summary split a multi-byte rune")
	}
	if !strings.HasSuffix(got, "...") || utf8.RuneCountInString(got) != 123 {
		t.Fatalf("unexpected summary length %d", utf8.RuneCountInString(got))
	}
}
