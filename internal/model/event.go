package model

import (
	"time"
)

// EventType represents the type of a published domain event.
type EventType string

const (
	EventTypeOrderPlaced  EventType = "order.placed"
	EventTypeSessionEnded EventType = "session.ended"
)

// OrderPlacedEvent is published after an order is committed.
type OrderPlacedEvent struct {
	ID        string    `json:"id"`
	ShopID    string    `json:"shop_id"`
	Type      EventType `json:"type"`
	Order     Order     `json:"order"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionEndedEvent is published when a conversation session is evicted.
type SessionEndedEvent struct {
	ID             string    `json:"id"`
	ShopID         string    `json:"shop_id"`
	Type           EventType `json:"type"`
	CustomerID     string    `json:"customer_id"`
	ConversationID string    `json:"conversation_id"`
	Reason         string    `json:"reason"`
	OrderID        string    `json:"order_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
