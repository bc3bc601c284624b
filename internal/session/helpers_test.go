package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/ordering-assistant/internal/cache"
	"github.com/capitalize-ai/ordering-assistant/internal/clock"
	"github.com/capitalize-ai/ordering-assistant/internal/inventory"
	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/resolver"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

type staticSource struct {
	mu    sync.Mutex
	items []model.InventoryItem
}

func (s *staticSource) ListInventory(_ context.Context, _ string) ([]model.InventoryItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.CloneInventory(s.items), nil
}

func stock(name string, price int64, qty int) model.InventoryItem {
	return model.InventoryItem{Name: name, Price: decimal.NewFromInt(price), Quantity: qty}
}

type fixture struct {
	catalog *inventory.Catalog
	clock   *clock.Fake
}

func newFixture(t *testing.T, items ...model.InventoryItem) *fixture {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	src := &staticSource{items: items}
	catalog := inventory.NewCatalog("shop-1", src, cache.Options{TTL: time.Hour, Clock: clk, OnFetch: func(error) {}}, logger.NewNop())
	return &fixture{catalog: catalog, clock: clk}
}

func (f *fixture) session(t *testing.T, customerID string) *Session {
	t.Helper()
	s := New(customerID, nil, Options{
		Catalog:  f.catalog,
		Resolver: resolver.New(resolver.DefaultSynonyms()),
		Clock:    f.clock,
	})
	require.NoError(t, s.RefreshSnapshot(context.Background()))
	return s
}

func money(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
