package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/store"
	"github.com/capitalize-ai/ordering-assistant/internal/store/storetest"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

func TestMemory_OrdersAndCustomers(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()

	_, err := m.FindCustomer(ctx, "111")
	assert.ErrorIs(t, err, model.ErrNotFound)

	c, err := m.CreateCustomer(ctx, model.Customer{Phone: "111", Name: "Asha"})
	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)

	again, err := m.CreateCustomer(ctx, model.Customer{Phone: "111", Name: "Other"})
	require.NoError(t, err)
	assert.Equal(t, c.ID, again.ID)

	id1, err := m.CreateOrder(ctx, model.Order{CustomerPhone: "111", Items: []model.LineItem{{Name: "Milk", Quantity: 1}}})
	require.NoError(t, err)
	id2, err := m.CreateOrder(ctx, model.Order{CustomerPhone: "222", Items: []model.LineItem{{Name: "Milk", Quantity: 1}}})
	require.NoError(t, err)
	assert.Equal(t, "0001", id1)
	assert.Equal(t, "0002", id2)

	orders, err := m.ListOrders(ctx, "111")
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "0001", orders[0].ID)

	_, err = m.CreateOrder(ctx, model.Order{})
	assert.ErrorIs(t, err, model.ErrValidation)
}

func TestMemory_ApplyInventoryDeltaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	m := store.NewMemory()
	m.SeedInventory("shop", store.DemoInventory())

	d := model.InventoryDelta{Key: model.DeltaKey("0001", "Onions"), ShopID: "shop", Item: "onions", Delta: -5}
	require.NoError(t, m.ApplyInventoryDelta(ctx, d))
	require.NoError(t, m.ApplyInventoryDelta(ctx, d))

	items, err := m.ListInventory(ctx, "shop")
	require.NoError(t, err)
	for _, it := range items {
		if it.Name == "Onions" {
			assert.Equal(t, 45, it.Quantity)
		}
	}

	err = m.ApplyInventoryDelta(ctx, model.InventoryDelta{Key: "x", ShopID: "shop", Item: "Mangoes", Delta: -1})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestGuarded_ReadRetriedOnce(t *testing.T) {
	m := &storetest.Mock{}
	m.On("ListInventory", mock.Anything, "shop").Return(nil, errors.New("conn reset")).Once()
	m.On("ListInventory", mock.Anything, "shop").Return([]model.InventoryItem{{Name: "Milk"}}, nil).Once()

	g := store.NewGuarded(m, time.Second, logger.NewNop())
	items, err := g.ListInventory(context.Background(), "shop")
	require.NoError(t, err)
	assert.Len(t, items, 1)
	m.AssertNumberOfCalls(t, "ListInventory", 2)
}

func TestGuarded_ReadFailsAfterRetry(t *testing.T) {
	m := &storetest.Mock{}
	m.On("FindCustomer", mock.Anything, "111").Return(model.Customer{}, errors.New("conn reset"))

	g := store.NewGuarded(m, time.Second, logger.NewNop())
	_, err := g.FindCustomer(context.Background(), "111")
	assert.ErrorIs(t, err, model.ErrBackendUnavailable)
	m.AssertNumberOfCalls(t, "FindCustomer", 2)
}

func TestGuarded_NotFoundIsNotRetried(t *testing.T) {
	m := &storetest.Mock{}
	m.On("FindCustomer", mock.Anything, "111").Return(model.Customer{}, model.NotFoundf("customer"))

	g := store.NewGuarded(m, time.Second, logger.NewNop())
	_, err := g.FindCustomer(context.Background(), "111")
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.NotErrorIs(t, err, model.ErrBackendUnavailable)
	m.AssertNumberOfCalls(t, "FindCustomer", 1)
}

func TestGuarded_WriteNotRetried(t *testing.T) {
	m := &storetest.Mock{}
	m.On("CreateOrder", mock.Anything, mock.Anything).Return("", errors.New("conn reset"))

	g := store.NewGuarded(m, time.Second, logger.NewNop())
	_, err := g.CreateOrder(context.Background(), model.Order{})
	assert.ErrorIs(t, err, model.ErrBackendUnavailable)
	m.AssertNumberOfCalls(t, "CreateOrder", 1)
}

type slowStore struct {
	*store.Memory
}

func (s slowStore) Ping(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestGuarded_Timeout(t *testing.T) {
	g := store.NewGuarded(slowStore{store.NewMemory()}, 10*time.Millisecond, logger.NewNop())

	start := time.Now()
	err := g.Ping(context.Background())
	assert.ErrorIs(t, err, model.ErrBackendUnavailable)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}
