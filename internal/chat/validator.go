package chat

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MaxMessageBytes = 4096 // 4KB max frame size
	MaxTextChars    = 2000 // max character count
)

// ErrEmptyContent is returned for blank messages.
var ErrEmptyContent = errors.New("chat: message text is empty")

// ValidateContent trims text and checks that it meets content requirements.
// It returns the trimmed text.
func ValidateContent(text string) (string, error) {
	text = strings.TrimSpace(text)
	if len(text) == 0 {
		return "", ErrEmptyContent
	}
	if len(text) > MaxMessageBytes {
		return "", fmt.Errorf("chat: message exceeds %d byte limit", MaxMessageBytes)
	}
	if !utf8.ValidString(text) {
		return "", fmt.Errorf("chat: message contains invalid UTF-8")
	}
	if utf8.RuneCountInString(text) > MaxTextChars {
		return "", fmt.Errorf("chat: message exceeds %d character limit", MaxTextChars)
	}
	return text, nil
}
