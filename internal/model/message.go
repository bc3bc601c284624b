package model

import (
	"time"
)

// Role represents the role of a message sender.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one chat message kept in a session's bounded history.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// SendMessageRequest is the request body for an inbound customer message.
type SendMessageRequest struct {
	CustomerID string `json:"customer_id"`
	Message    string `json:"message"`
}

// SendMessageResponse carries the assistant reply.
type SendMessageResponse struct {
	CustomerID string `json:"customer_id"`
	Reply      string `json:"reply"`
}

// ImageLine is one {item, quantity} pair extracted from an image of a shopping list.
type ImageLine struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

// ImageOrderRequest is the request body for the image-derived list path.
type ImageOrderRequest struct {
	CustomerID string      `json:"customer_id"`
	Items      []ImageLine `json:"items"`
}

// ErrorEvent represents an error response body.
type ErrorEvent struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}
