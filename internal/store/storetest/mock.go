// Package storetest provides a testify mock of store.Store.
package storetest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
)

// Mock is a store.Store whose behaviour is scripted with testify's mock.
type Mock struct {
	mock.Mock
}

// ListInventory implements store.Store.
func (m *Mock) ListInventory(ctx context.Context, shopID string) ([]model.InventoryItem, error) {
	args := m.Called(ctx, shopID)
	items, _ := args.Get(0).([]model.InventoryItem)
	return items, args.Error(1)
}

// FindCustomer implements store.Store.
func (m *Mock) FindCustomer(ctx context.Context, phone string) (model.Customer, error) {
	args := m.Called(ctx, phone)
	c, _ := args.Get(0).(model.Customer)
	return c, args.Error(1)
}

// CreateCustomer implements store.Store.
func (m *Mock) CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	args := m.Called(ctx, c)
	out, _ := args.Get(0).(model.Customer)
	return out, args.Error(1)
}

// CreateOrder implements store.Store.
func (m *Mock) CreateOrder(ctx context.Context, o model.Order) (string, error) {
	args := m.Called(ctx, o)
	return args.String(0), args.Error(1)
}

// ListOrders implements store.Store.
func (m *Mock) ListOrders(ctx context.Context, phone string) ([]model.Order, error) {
	args := m.Called(ctx, phone)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Error(1)
}

// ApplyInventoryDelta implements store.Store.
func (m *Mock) ApplyInventoryDelta(ctx context.Context, d model.InventoryDelta) error {
	return m.Called(ctx, d).Error(0)
}

// Ping implements store.Store.
func (m *Mock) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
