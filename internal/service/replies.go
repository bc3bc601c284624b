package service

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/session"
)

const (
	replyWelcomeNew     = "Welcome to %s! I don't think we've met yet. What's your name?"
	replyAskName        = "Sorry, I didn't get your name. What should I call you?"
	replyAskAddress     = "Thanks, %s! What's your delivery address?"
	replyAskFullAddress = "Could you share your full delivery address?"
	replyRegistered     = "You're all set, %s. What would you like to order today?"
	replyEmptyMessage   = "Sorry, I didn't catch that. What would you like to order?"
	replyRephrase       = "Sorry, I didn't quite understand. Could you say that another way?"
	replyBackendDown    = "Sorry, I'm having trouble reaching our systems right now. Please try again in a moment."
	replyOrderPlaced    = "Your order #%s is placed. Total: Rs %s."
	replyGoodbye        = "Thanks for stopping by. Goodbye!"
	replyGoodbyeCleared = "Thanks for stopping by. I've cleared your cart. Goodbye!"
	replyGoodbyeOrdered = "Thank you for your order #%s. Goodbye!"
	replyImageAdded     = "Added %d of %d items from your list."
)

var terminationPhrases = map[string]bool{
	"bye":              true,
	"goodbye":          true,
	"good bye":         true,
	"exit":             true,
	"quit":             true,
	"end":              true,
	"end conversation": true,
	"end chat":         true,
}

// isTermination reports whether message asks to end the conversation.
func isTermination(message string) bool {
	m := strings.ToLower(strings.TrimSpace(message))
	m = strings.TrimRightFunc(m, unicode.IsPunct)
	return terminationPhrases[m]
}

var namePrefixes = []string{"my name is ", "i am ", "i'm ", "im ", "this is ", "it's ", "its "}

// cleanName extracts a name from an answer such as "I'm Priya.".
func cleanName(message string) string {
	m := strings.TrimSpace(message)
	lower := strings.ToLower(m)
	for _, p := range namePrefixes {
		if strings.HasPrefix(lower, p) {
			m = m[len(p):]
			break
		}
	}
	m = strings.TrimFunc(m, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSpace(r) })
	if m == "" || len([]rune(m)) > 60 {
		return ""
	}
	for _, r := range m {
		if unicode.IsDigit(r) {
			return ""
		}
	}
	return m
}

// describe turns a failed cart operation into a message for the customer.
func describe(err error, item string) string {
	var stockErr *model.StockError
	switch {
	case errors.As(err, &stockErr):
		if stockErr.Available <= 0 {
			return fmt.Sprintf("Sorry, %s is out of stock right now.", stockErr.Item)
		}
		return fmt.Sprintf("Sorry, we only have %d of %s available.", stockErr.Available, stockErr.Item)
	case errors.Is(err, model.ErrNotFound):
		return fmt.Sprintf("I couldn't find %q. Could you check the name?", item)
	case errors.Is(err, model.ErrAlreadyCommitted):
		return "Your order has already been placed, so it can't be changed."
	case errors.Is(err, model.ErrValidation):
		return "That doesn't look right. Please check the item and quantity."
	default:
		return replyBackendDown
	}
}

func describeFinalize(err error, s *session.Session) string {
	switch {
	case errors.Is(err, model.ErrAlreadyCommitted):
		return fmt.Sprintf("Your order #%s has already been placed.", s.Draft().OrderID())
	case errors.Is(err, model.ErrValidation) && s.Draft().IsEmpty():
		return "Your cart is empty. What would you like to order?"
	case errors.Is(err, model.ErrValidation):
		return "This conversation has ended, so I can't place the order."
	default:
		return "Sorry, I couldn't place your order just now. Your cart is saved, please try again in a moment."
	}
}
