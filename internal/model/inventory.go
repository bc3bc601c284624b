// Package model defines data structures for the ordering assistant.
package model

import (
	"strings"

	"github.com/shopspring/decimal"
)

// InventoryItem is one stock line of a shop. Names are unique per shop,
// compared case-insensitively.
type InventoryItem struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Quantity int             `json:"quantity"`
	MinStock int             `json:"minStock"`
	Category string          `json:"category"`
}

// Key returns the case-insensitive identity of the item.
func (i InventoryItem) Key() string {
	return ItemKey(i.Name)
}

// LowStock reports whether the quantity is at or below the minimum-stock threshold.
func (i InventoryItem) LowStock() bool {
	return i.Quantity <= i.MinStock
}

// ItemKey normalizes an item name for identity comparisons.
func ItemKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CloneInventory returns a deep copy of items.
func CloneInventory(items []InventoryItem) []InventoryItem {
	if items == nil {
		return nil
	}
	out := make([]InventoryItem, len(items))
	copy(out, items)
	return out
}

// InventoryDelta is a change to a canonical stock quantity. Key makes the
// change idempotent: a store applies each key at most once.
type InventoryDelta struct {
	Key     string `json:"key"`
	ShopID  string `json:"shop_id"`
	OrderID string `json:"order_id"`
	Item    string `json:"item"`
	Delta   int    `json:"delta"`
}

// DeltaKey builds the idempotency key for an order line.
func DeltaKey(orderID, item string) string {
	return orderID + ":" + ItemKey(item)
}
