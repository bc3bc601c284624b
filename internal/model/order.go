package model

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the lifecycle state of a persisted order.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// OrderSource records how an order was captured.
type OrderSource string

const (
	OrderSourceConversation OrderSource = "conversation"
	OrderSourceImage        OrderSource = "image_upload"
)

// LineItem is one cart or order line. The total is always derived from
// quantity and unit price.
type LineItem struct {
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"price"`
}

// Total returns Quantity × UnitPrice.
func (l LineItem) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// MarshalJSON includes the derived total.
func (l LineItem) MarshalJSON() ([]byte, error) {
	type line LineItem
	return json.Marshal(struct {
		line
		Total decimal.Decimal `json:"total"`
	}{line: line(l), Total: l.Total()})
}

// Order is a committed customer order as stored by the backing store.
type Order struct {
	ID            string          `json:"order_id"`
	ShopID        string          `json:"shop_id"`
	CustomerID    string          `json:"customer_id"`
	CustomerPhone string          `json:"customerPhone"`
	CustomerName  string          `json:"customerName"`
	Items         []LineItem      `json:"items"`
	Total         decimal.Decimal `json:"total"`
	Notes         string          `json:"notes"`
	Status        OrderStatus     `json:"status"`
	Source        OrderSource     `json:"source"`
	CreatedAt     time.Time       `json:"timestamp"`
}

// SumLines returns Σ line totals.
func SumLines(lines []LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}
