package channel

import (
	"testing"
)

func TestTelegramParseModeFor(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Token: "x", ParseMode: "Markdown"})

	tests := []struct {
		format string
		want   string
	}{
		{"", "Markdown"}, // empty hint keeps the configured default
		{"plain", ""},    // plain disables formatting entirely
		{"text", ""},
		{"markdown", "Markdown"},
		{"html", "HTML"},
		{"Plain", ""}, // hints are case-insensitive
		{"something-else", "Markdown"},
	}
	for _, tt := range tests {
		if got := tg.parseModeFor(tt.format); got != tt.want {
			t.Errorf("parseModeFor(%q) = %q, want %q", tt.format, got, tt.want)
		}
	}
}

func TestTelegramAllowList(t *testing.T) {
	tg := NewTelegram(TelegramConfig{Token: "x", AllowFrom: []string{"42", " 7 ", "bogus"}})
	if !tg.isAllowed(42) || !tg.isAllowed(7) {
		t.Fatal("listed users should be allowed")
	}
	if tg.isAllowed(99) {
		t.Fatal("unlisted user should be rejected")
	}

	open := NewTelegram(TelegramConfig{Token: "x"})
	if !open.isAllowed(99) {
		t.Fatal("empty allow list admits everyone")
	}
}
