package utils

import (
	"strings"
	"testing"
	"unicode/utf8"

	"go.uber.org/zap/zaptest"
)

func TestTruncateTextKeepsRunes(t *testing.T) {
	tp := NewTextProcessor(zaptest.NewLogger(t))

	// "ü" is two bytes; cutting at 6 would split it
	got := tp.TruncateText("Grüße aus Berlin", 6)
	if !utf8.ValidString(got) {
		t.Fatalf("invalid UTF-8: %q", got)
	}
	if !strings.HasPrefix(got, "Grü") || !strings.HasSuffix(got, "...") {
		t.Errorf("got %q", got)
	}

	if got := tp.TruncateText("short", 100); got != "short" {
		t.Errorf("got %q, want unchanged", got)
	}
}

func TestProcessText(t *testing.T) {
	tp := NewTextProcessor(zaptest.NewLogger(t))

	got := tp.ProcessText("Hello\r\n\t  world\x00 \xff!", 0)
	if got != "Hello world !" {
		t.Errorf("got %q", got)
	}
}

func TestFold(t *testing.T) {
	tp := NewTextProcessor(zaptest.NewLogger(t))

	if got := tp.Fold("Newsletter"); got != "newsletter" {
		t.Errorf("Fold = %q, want newsletter", got)
	}
	if got := tp.Fold("ＳＡＬＥ"); got != "sale" {
		t.Errorf("Fold(fullwidth) = %q, want sale", got)
	}
}
