package middleware

import (
	"errors"
	"fmt"
	"unicode"
	"unicode/utf8"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
)

const (
	maxMessageLength = 4000
	maxCustomerID    = 32
	maxImageLines    = 100
)

// ValidateMessageContent validates a customer message. Empty messages are
// accepted; the assistant asks the customer to repeat.
func ValidateMessageContent(content string) error {
	if len(content) > maxMessageLength {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateCustomerID validates a customer id, normally a phone number.
func ValidateCustomerID(id string) error {
	if id == "" {
		return errors.New("customer_id is required")
	}
	if len(id) > maxCustomerID {
		return errors.New("customer_id exceeds maximum length")
	}
	for _, r := range id {
		if !unicode.IsDigit(r) && !unicode.IsLetter(r) && r != '+' && r != '-' && r != '_' {
			return fmt.Errorf("customer_id contains invalid character %q", r)
		}
	}
	return nil
}

// ValidateImageLines validates an image-derived shopping list.
func ValidateImageLines(lines []model.ImageLine) error {
	if len(lines) == 0 {
		return errors.New("items cannot be empty")
	}
	if len(lines) > maxImageLines {
		return errors.New("too many items")
	}
	for i, l := range lines {
		if l.Item == "" {
			return fmt.Errorf("items[%d]: item is required", i)
		}
		if !utf8.ValidString(l.Item) {
			return fmt.Errorf("items[%d]: item must be valid UTF-8", i)
		}
	}
	return nil
}
