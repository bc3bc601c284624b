package model

import (
	"time"
)

// Customer is a shop customer identified by phone number.
type Customer struct {
	ID        string    `json:"customer_id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	Address   string    `json:"address"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
