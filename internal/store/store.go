// Package store defines the backing-store boundary used by the engine and
// the wrappers that bound its calls.
package store

import (
	"context"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
)

// Store is the persistence collaborator for inventory, customers and orders.
type Store interface {
	// ListInventory returns a shop's inventory in canonical order.
	ListInventory(ctx context.Context, shopID string) ([]model.InventoryItem, error)

	// FindCustomer returns the customer with phone, or model.ErrNotFound.
	FindCustomer(ctx context.Context, phone string) (model.Customer, error)

	// CreateCustomer persists a new customer and returns it with its id.
	CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error)

	// CreateOrder persists an order and returns its id.
	CreateOrder(ctx context.Context, o model.Order) (string, error)

	// ListOrders returns a customer's orders, oldest first.
	ListOrders(ctx context.Context, phone string) ([]model.Order, error)

	// ApplyInventoryDelta changes a canonical quantity. Applying a key that
	// was already applied is a no-op.
	ApplyInventoryDelta(ctx context.Context, d model.InventoryDelta) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error
}
