package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ordering-assistant/internal/cache"
	"github.com/capitalize-ai/ordering-assistant/internal/clock"
	"github.com/capitalize-ai/ordering-assistant/internal/inventory"
	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/session"
	"github.com/capitalize-ai/ordering-assistant/internal/store/storetest"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

type finalizeFixture struct {
	store     *storetest.Mock
	catalog   *inventory.Catalog
	session   *session.Session
	deltas    *recordedDeltas
	events    *recordedEvents
	finalizer *Finalizer
}

func newFinalizeFixture(t *testing.T) *finalizeFixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	st := &storetest.Mock{}
	st.On("ListInventory", mock.Anything, testShop).Return(testInventory(), nil)

	log := logger.NewNop()
	catalog := inventory.NewCatalog(testShop, st, cache.Options{TTL: time.Hour, Clock: clk, OnFetch: func(error) {}}, log)
	s := session.New("+911234567890", &model.Customer{ID: "c-1", Phone: "+911234567890", Name: "Asha"}, session.Options{
		Catalog: catalog,
		Clock:   clk,
	})
	require.NoError(t, s.RefreshSnapshot(context.Background()))
	require.NoError(t, s.Advance(session.StageActiveOrdering))

	deltas := &recordedDeltas{}
	events := &recordedEvents{}
	return &finalizeFixture{
		store:     st,
		catalog:   catalog,
		session:   s,
		deltas:    deltas,
		events:    events,
		finalizer: NewFinalizer(testShop, st, deltas, events, clk, log),
	}
}

func TestFinalize_CommitsOnce(t *testing.T) {
	f := newFinalizeFixture(t)
	ctx := context.Background()

	_, err := f.session.AddItem("Basmati Rice 5kg", 2)
	require.NoError(t, err)
	_, err = f.session.AddItem("Onions", 4)
	require.NoError(t, err)

	f.store.On("CreateOrder", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.CustomerPhone == "+911234567890" && len(o.Items) == 2 && o.Total.Equal(money(1060))
	})).Return("ord-1", nil).Once()

	order, err := f.finalizer.Finalize(ctx, f.session)
	require.NoError(t, err)
	assert.Equal(t, "ord-1", order.ID)
	assert.Equal(t, model.OrderSourceConversation, order.Source)
	assert.Equal(t, session.DraftStatusCommitted, f.session.Draft().Status())
	assert.Equal(t, session.StageFinalized, f.session.Stage())

	// Reservations became sales: nothing reserved, nothing returned.
	assert.Equal(t, 0, f.catalog.Reserved("Basmati Rice 5kg"))
	assert.Equal(t, 1, f.catalog.Available("Basmati Rice 5kg"))
	assert.Equal(t, 6, f.catalog.Available("Onions"))

	require.Len(t, f.deltas.deltas, 2)
	assert.Equal(t, model.InventoryDelta{
		Key:     model.DeltaKey("ord-1", "Basmati Rice 5kg"),
		ShopID:  testShop,
		OrderID: "ord-1",
		Item:    "Basmati Rice 5kg",
		Delta:   -2,
	}, f.deltas.deltas[0])
	require.Len(t, f.events.orders, 1)
	assert.Equal(t, "ord-1", f.events.orders[0].Order.ID)

	_, err = f.finalizer.Finalize(ctx, f.session)
	assert.ErrorIs(t, err, model.ErrAlreadyCommitted)
	f.store.AssertNumberOfCalls(t, "CreateOrder", 1)
	assert.Len(t, f.deltas.deltas, 2)
}

func TestFinalize_StoreFailureKeepsDraft(t *testing.T) {
	f := newFinalizeFixture(t)
	ctx := context.Background()

	_, err := f.session.AddItem("Onions", 3)
	require.NoError(t, err)

	f.store.On("CreateOrder", mock.Anything, mock.Anything).
		Return("", model.Backend("create order", errors.New("connection refused"))).Once()

	_, err = f.finalizer.Finalize(ctx, f.session)
	require.ErrorIs(t, err, model.ErrBackendUnavailable)
	assert.Equal(t, session.DraftStatusDraft, f.session.Draft().Status())
	assert.Equal(t, 3, f.catalog.Reserved("Onions"))
	assert.Empty(t, f.deltas.deltas)
	assert.Empty(t, f.events.orders)

	f.store.On("CreateOrder", mock.Anything, mock.Anything).Return("ord-2", nil).Once()
	order, err := f.finalizer.Finalize(ctx, f.session)
	require.NoError(t, err)
	assert.Equal(t, "ord-2", order.ID)
	assert.Equal(t, 0, f.catalog.Reserved("Onions"))
	f.store.AssertNumberOfCalls(t, "CreateOrder", 2)
}

func TestFinalize_EmptyDraft(t *testing.T) {
	f := newFinalizeFixture(t)

	_, err := f.finalizer.Finalize(context.Background(), f.session)
	assert.ErrorIs(t, err, model.ErrValidation)
	f.store.AssertNotCalled(t, "CreateOrder", mock.Anything, mock.Anything)
}

func TestFinalize_ImageSource(t *testing.T) {
	f := newFinalizeFixture(t)

	res, err := f.session.AddImageLine("onion", 2)
	require.NoError(t, err)
	require.Equal(t, 2, res.Fulfilled)

	f.store.On("CreateOrder", mock.Anything, mock.MatchedBy(func(o model.Order) bool {
		return o.Source == model.OrderSourceImage
	})).Return("ord-3", nil).Once()

	_, err = f.finalizer.Finalize(context.Background(), f.session)
	require.NoError(t, err)
	f.store.AssertExpectations(t)
}
