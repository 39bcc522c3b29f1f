package protocol

import (
	"strings"
	"unicode/utf8"
)

const (
	// MaxNameLength is the longest display name kept, in characters
	MaxNameLength = 32

	// MaxChatLength is the longest chat text relayed, in characters
	MaxChatLength = 300
)

// SanitizeName trims and clamps a display name, falling back when blank
func SanitizeName(name, fallback string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = fallback
	}
	return clamp(name, MaxNameLength)
}

// SanitizeChat trims and clamps chat text; ok is false for blank messages
func SanitizeChat(text string) (string, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", false
	}
	return clamp(text, MaxChatLength), true
}

func clamp(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
