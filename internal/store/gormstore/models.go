package gormstore

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
)

// InventoryItem is a shop's stock line.
type InventoryItem struct {
	ID        uint            `gorm:"primaryKey"`
	ShopID    string          `gorm:"type:varchar(64);not null;uniqueIndex:idx_inventory_shop_name"`
	Name      string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_inventory_shop_name"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Quantity  int             `gorm:"not null;check:quantity >= 0"`
	MinStock  int             `gorm:"not null;default:0"`
	Category  string          `gorm:"type:varchar(64)"`
	Position  int             `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Customer is a shop customer.
type Customer struct {
	ID        string `gorm:"type:uuid;primaryKey"`
	Phone     string `gorm:"type:varchar(32);not null;uniqueIndex"`
	Name      string `gorm:"type:varchar(255)"`
	Address   string `gorm:"type:text"`
	Email     string `gorm:"type:varchar(255)"`
	CreatedAt time.Time
}

// Order is a committed order.
type Order struct {
	ID            string          `gorm:"type:uuid;primaryKey"`
	ShopID        string          `gorm:"type:varchar(64);not null;index"`
	CustomerID    string          `gorm:"type:varchar(64)"`
	CustomerPhone string          `gorm:"type:varchar(32);not null;index"`
	CustomerName  string          `gorm:"type:varchar(255)"`
	Total         decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Notes         string          `gorm:"type:text"`
	Status        string          `gorm:"type:varchar(16);not null"`
	Source        string          `gorm:"type:varchar(16);not null"`
	Items         []OrderItem     `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt     time.Time       `gorm:"index"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   string          `gorm:"type:uuid;not null;index"`
	Name      string          `gorm:"type:varchar(255);not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:numeric(12,2);not null"`
}

// InventoryAdjustment records an applied canonical stock change. The unique
// key makes re-applying the same change a no-op.
type InventoryAdjustment struct {
	ID             uint   `gorm:"primaryKey"`
	IdempotencyKey string `gorm:"type:varchar(128);not null;uniqueIndex"`
	ShopID         string `gorm:"type:varchar(64);not null;index"`
	OrderID        string `gorm:"type:varchar(64)"`
	ItemName       string `gorm:"type:varchar(255);not null"`
	Delta          int    `gorm:"not null"`
	CreatedAt      time.Time
}

func (r InventoryItem) toModel() model.InventoryItem {
	return model.InventoryItem{
		Name:     r.Name,
		Price:    r.Price,
		Quantity: r.Quantity,
		MinStock: r.MinStock,
		Category: r.Category,
	}
}

func (r Customer) toModel() model.Customer {
	return model.Customer{
		ID:        r.ID,
		Phone:     r.Phone,
		Name:      r.Name,
		Address:   r.Address,
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
	}
}

func customerRow(c model.Customer) Customer {
	return Customer{
		ID:        c.ID,
		Phone:     c.Phone,
		Name:      c.Name,
		Address:   c.Address,
		Email:     c.Email,
		CreatedAt: c.CreatedAt,
	}
}

func orderRow(o model.Order) Order {
	row := Order{
		ID:            o.ID,
		ShopID:        o.ShopID,
		CustomerID:    o.CustomerID,
		CustomerPhone: o.CustomerPhone,
		CustomerName:  o.CustomerName,
		Total:         o.Total,
		Notes:         o.Notes,
		Status:        string(o.Status),
		Source:        string(o.Source),
		CreatedAt:     o.CreatedAt,
		Items:         make([]OrderItem, len(o.Items)),
	}
	for i, l := range o.Items {
		row.Items[i] = OrderItem{OrderID: o.ID, Name: l.Name, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return row
}

func (r Order) toModel() model.Order {
	o := model.Order{
		ID:            r.ID,
		ShopID:        r.ShopID,
		CustomerID:    r.CustomerID,
		CustomerPhone: r.CustomerPhone,
		CustomerName:  r.CustomerName,
		Total:         r.Total,
		Notes:         r.Notes,
		Status:        model.OrderStatus(r.Status),
		Source:        model.OrderSource(r.Source),
		CreatedAt:     r.CreatedAt,
		Items:         make([]model.LineItem, len(r.Items)),
	}
	for i, l := range r.Items {
		o.Items[i] = model.LineItem{Name: l.Name, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}
	return o
}
