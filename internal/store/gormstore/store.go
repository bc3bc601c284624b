// Package gormstore implements store.Store on PostgreSQL through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

// Store is a gorm-backed store.Store.
type Store struct {
	db     *gorm.DB
	logger *logger.Logger
}

// Open connects to dsn and migrates the schema.
func Open(dsn string, log *logger.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	s := New(db, log)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// New wraps an open connection.
func New(db *gorm.DB, log *logger.Logger) *Store {
	return &Store{db: db, logger: log.Named("gormstore")}
}

// Migrate creates or updates the tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&InventoryItem{}, &Customer{}, &Order{}, &OrderItem{}, &InventoryAdjustment{}); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SeedInventory inserts items for a shop, leaving existing names untouched.
func (s *Store) SeedInventory(ctx context.Context, shopID string, items []model.InventoryItem) error {
	rows := make([]InventoryItem, len(items))
	for i, it := range items {
		rows[i] = InventoryItem{
			ShopID:   shopID,
			Name:     it.Name,
			Price:    it.Price,
			Quantity: it.Quantity,
			MinStock: it.MinStock,
			Category: it.Category,
			Position: i,
		}
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

// ListInventory implements store.Store.
func (s *Store) ListInventory(ctx context.Context, shopID string) ([]model.InventoryItem, error) {
	var rows []InventoryItem
	err := s.db.WithContext(ctx).
		Where("shop_id = ?", shopID).
		Order("position asc, id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	items := make([]model.InventoryItem, len(rows))
	for i, r := range rows {
		items[i] = r.toModel()
	}
	return items, nil
}

// FindCustomer implements store.Store.
func (s *Store) FindCustomer(ctx context.Context, phone string) (model.Customer, error) {
	var row Customer
	err := s.db.WithContext(ctx).Where("phone = ?", phone).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Customer{}, model.NotFoundf("customer %q", phone)
	}
	if err != nil {
		return model.Customer{}, err
	}
	return row.toModel(), nil
}

// CreateCustomer implements store.Store.
func (s *Store) CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	if c.Phone == "" {
		return model.Customer{}, model.Validationf("customer phone is required")
	}
	if c.ID == "" {
		c.ID = uuid.Must(uuid.NewV7()).String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	row := customerRow(c)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return model.Customer{}, err
	}
	return row.toModel(), nil
}

// CreateOrder implements store.Store.
func (s *Store) CreateOrder(ctx context.Context, o model.Order) (string, error) {
	if len(o.Items) == 0 {
		return "", model.Validationf("order has no items")
	}
	if o.ID == "" {
		o.ID = uuid.Must(uuid.NewV7()).String()
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	row := orderRow(o)
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", err
	}
	return row.ID, nil
}

// ListOrders implements store.Store.
func (s *Store) ListOrders(ctx context.Context, phone string) ([]model.Order, error) {
	var rows []Order
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("id asc") }).
		Where("customer_phone = ?", phone).
		Order("created_at asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	orders := make([]model.Order, len(rows))
	for i, r := range rows {
		orders[i] = r.toModel()
	}
	return orders, nil
}

// ApplyInventoryDelta implements store.Store. The adjustment row and the
// quantity update commit together, so a key that already has a row was
// fully applied before.
func (s *Store) ApplyInventoryDelta(ctx context.Context, d model.InventoryDelta) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		adj := InventoryAdjustment{
			IdempotencyKey: d.Key,
			ShopID:         d.ShopID,
			OrderID:        d.OrderID,
			ItemName:       d.Item,
			Delta:          d.Delta,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "idempotency_key"}},
			DoNothing: true,
		}).Create(&adj)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			s.logger.Debug("inventory delta already applied", zap.String("key", d.Key))
			return nil
		}

		res = tx.Model(&InventoryItem{}).
			Where("shop_id = ? AND LOWER(name) = ?", d.ShopID, model.ItemKey(d.Item)).
			Update("quantity", gorm.Expr("GREATEST(quantity + ?, 0)", d.Delta))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return model.NotFoundf("item %q in shop %q", d.Item, d.ShopID)
		}
		return nil
	})
}

// Ping implements store.Store.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
