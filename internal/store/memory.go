package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
)

// Memory is an in-process Store. It backs the console and tests.
type Memory struct {
	mu        sync.Mutex
	inventory map[string][]model.InventoryItem
	customers map[string]model.Customer
	orders    []model.Order
	applied   map[string]bool
	nextOrder int
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		inventory: make(map[string][]model.InventoryItem),
		customers: make(map[string]model.Customer),
		applied:   make(map[string]bool),
	}
}

// SeedInventory replaces a shop's inventory.
func (m *Memory) SeedInventory(shopID string, items []model.InventoryItem) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventory[shopID] = model.CloneInventory(items)
}

// ListInventory implements Store.
func (m *Memory) ListInventory(_ context.Context, shopID string) ([]model.InventoryItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	items, ok := m.inventory[shopID]
	if !ok {
		return nil, model.NotFoundf("shop %q", shopID)
	}
	return model.CloneInventory(items), nil
}

// FindCustomer implements Store.
func (m *Memory) FindCustomer(_ context.Context, phone string) (model.Customer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.customers[phone]
	if !ok {
		return model.Customer{}, model.NotFoundf("customer %q", phone)
	}
	return c, nil
}

// CreateCustomer implements Store.
func (m *Memory) CreateCustomer(_ context.Context, c model.Customer) (model.Customer, error) {
	if c.Phone == "" {
		return model.Customer{}, model.Validationf("customer phone is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.customers[c.Phone]; ok {
		return existing, nil
	}
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.customers[c.Phone] = c
	return c, nil
}

// CreateOrder implements Store. Ids are sequential and zero padded.
func (m *Memory) CreateOrder(_ context.Context, o model.Order) (string, error) {
	if len(o.Items) == 0 {
		return "", model.Validationf("order has no items")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOrder++
	o.ID = fmt.Sprintf("%04d", m.nextOrder)
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	o.Items = append([]model.LineItem(nil), o.Items...)
	m.orders = append(m.orders, o)
	return o.ID, nil
}

// ListOrders implements Store.
func (m *Memory) ListOrders(_ context.Context, phone string) ([]model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Order
	for _, o := range m.orders {
		if o.CustomerPhone == phone {
			out = append(out, o)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ApplyInventoryDelta implements Store.
func (m *Memory) ApplyInventoryDelta(_ context.Context, d model.InventoryDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.Key != "" && m.applied[d.Key] {
		return nil
	}
	items := m.inventory[d.ShopID]
	key := model.ItemKey(d.Item)
	for i := range items {
		if items[i].Key() == key {
			items[i].Quantity = max(items[i].Quantity+d.Delta, 0)
			if d.Key != "" {
				m.applied[d.Key] = true
			}
			return nil
		}
	}
	return model.NotFoundf("item %q in shop %q", d.Item, d.ShopID)
}

// Ping implements Store.
func (m *Memory) Ping(context.Context) error {
	return nil
}

// Orders returns every stored order.
func (m *Memory) Orders() []model.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Order(nil), m.orders...)
}

// DemoInventory is a small grocery list for the console demo.
func DemoInventory() []model.InventoryItem {
	item := func(name, price string, qty, minStock int, category string) model.InventoryItem {
		return model.InventoryItem{
			Name:     name,
			Price:    decimal.RequireFromString(price),
			Quantity: qty,
			MinStock: minStock,
			Category: category,
		}
	}
	return []model.InventoryItem{
		item("Amul Taaza Milk 1L", "54", 40, 10, "dairy"),
		item("Amul Masti Curd 400g", "35", 20, 5, "dairy"),
		item("Aashirvaad Atta 5kg", "245", 15, 3, "staples"),
		item("India Gate Basmati Rice 1kg", "120", 25, 5, "staples"),
		item("Toor Dal 1kg", "160", 18, 4, "staples"),
		item("Fortune Sunflower Oil 1L", "155", 12, 3, "staples"),
		item("Tata Salt 1kg", "28", 30, 5, "staples"),
		item("Sugar 1kg", "45", 22, 5, "staples"),
		item("Onions", "20", 50, 10, "vegetables"),
		item("Tomatoes", "30", 35, 10, "vegetables"),
		item("Potatoes", "25", 45, 10, "vegetables"),
		item("Britannia Bread", "40", 10, 2, "bakery"),
	}
}
