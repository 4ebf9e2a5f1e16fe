package middleware

import (
	"errors"
	"unicode/utf8"

	"github.com/google/uuid"
)

// Input limits for public and dashboard requests.
const (
	MaxMessageLength  = 4000
	MaxDocumentLength = 1 << 20
	MaxTitleLength    = 256
)

// ValidateMessageContent validates a chat or agent message.
func ValidateMessageContent(content string) error {
	if len(content) == 0 {
		return errors.New("content cannot be empty")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	if utf8.RuneCountInString(content) > MaxMessageLength {
		return errors.New("content exceeds maximum length")
	}
	return nil
}

// ValidateDocument validates the text of a knowledge document.
func ValidateDocument(content string) error {
	if len(content) > MaxDocumentLength {
		return errors.New("document exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("document must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID.
func ValidateConversationID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ValidateTitle validates a document title.
func ValidateTitle(title string) error {
	if len(title) > MaxTitleLength {
		return errors.New("title exceeds maximum length")
	}
	if !utf8.ValidString(title) {
		return errors.New("title must be valid UTF-8")
	}
	return nil
}
