package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/capitalize-ai/ordering-assistant/internal/cache"
	"github.com/capitalize-ai/ordering-assistant/internal/clock"
	"github.com/capitalize-ai/ordering-assistant/internal/intent"
	"github.com/capitalize-ai/ordering-assistant/internal/inventory"
	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/resolver"
	"github.com/capitalize-ai/ordering-assistant/internal/session"
	"github.com/capitalize-ai/ordering-assistant/internal/store"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

const testShop = "shop-1"

func stock(name string, price int64, qty int) model.InventoryItem {
	return model.InventoryItem{Name: name, Price: decimal.NewFromInt(price), Quantity: qty}
}

func testInventory() []model.InventoryItem {
	return []model.InventoryItem{
		stock("Basmati Rice 5kg", 450, 3),
		stock("Onions", 40, 10),
		stock("Britannia Bread", 45, 0),
	}
}

type recordedEvents struct {
	mu     sync.Mutex
	orders []*model.OrderPlacedEvent
	ended  []*model.SessionEndedEvent
}

func (r *recordedEvents) PublishOrderPlaced(_ context.Context, e *model.OrderPlacedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, e)
	return nil
}

func (r *recordedEvents) PublishSessionEnded(_ context.Context, e *model.SessionEndedEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, e)
	return nil
}

func (r *recordedEvents) endedReasons() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.ended {
		out = append(out, e.Reason)
	}
	return out
}

type recordedDeltas struct {
	mu     sync.Mutex
	deltas []model.InventoryDelta
}

func (r *recordedDeltas) Enqueue(_ context.Context, deltas ...model.InventoryDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deltas = append(r.deltas, deltas...)
	return nil
}

// scripted returns canned replies in order.
type scripted struct {
	mu      sync.Mutex
	replies []intent.Reply
	errs    []error
	seen    []intent.Request
}

func (s *scripted) Interpret(_ context.Context, req intent.Request) (intent.Reply, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, req)
	i := len(s.seen) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return intent.Reply{}, s.errs[i]
	}
	if i < len(s.replies) {
		return s.replies[i], nil
	}
	return intent.Reply{Text: "ok"}, nil
}

type harness struct {
	assistant *Assistant
	store     *store.Memory
	catalog   *inventory.Catalog
	registry  *session.Registry
	locks     *session.LockManager
	events    *recordedEvents
	deltas    *recordedDeltas
	clock     *clock.Fake
}

func newHarness(t *testing.T, interp intent.Interpreter) *harness {
	t.Helper()
	clk := clock.NewFake(time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC))
	mem := store.NewMemory()
	mem.SeedInventory(testShop, testInventory())

	log := logger.NewNop()
	catalog := inventory.NewCatalog(testShop, mem, cache.Options{TTL: time.Hour, Clock: clk, OnFetch: func(error) {}}, log)
	registry := session.NewRegistry()
	locks := session.NewLockManager(50 * time.Millisecond)
	events := &recordedEvents{}
	deltas := &recordedDeltas{}
	finalizer := NewFinalizer(testShop, mem, deltas, events, clk, log)

	a := NewAssistant(Config{ShopID: testShop, ShopName: "Test Mart"}, Deps{
		Store:       mem,
		Catalog:     catalog,
		Resolver:    resolver.New(resolver.DefaultSynonyms()),
		Interpreter: interp,
		Registry:    registry,
		Locks:       locks,
		Finalizer:   finalizer,
		Events:      events,
		Clock:       clk,
	}, log)

	return &harness{
		assistant: a,
		store:     mem,
		catalog:   catalog,
		registry:  registry,
		locks:     locks,
		events:    events,
		deltas:    deltas,
		clock:     clk,
	}
}

func (h *harness) knownCustomer(t *testing.T, phone, name string) {
	t.Helper()
	_, err := h.store.CreateCustomer(context.Background(), model.Customer{Phone: phone, Name: name, Address: "1 Test Street"})
	if err != nil {
		t.Fatalf("create customer: %v", err)
	}
}

func money(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}
