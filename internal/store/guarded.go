package store

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

// DefaultTimeout bounds each backing-store call.
const DefaultTimeout = 5 * time.Second

// Guarded bounds every call to the wrapped store with a timeout, retries
// read-only calls once on failure and reports failures as
// model.ErrBackendUnavailable. Writes are never retried.
type Guarded struct {
	next    Store
	timeout time.Duration
	logger  *logger.Logger
}

// NewGuarded wraps next.
func NewGuarded(next Store, timeout time.Duration, log *logger.Logger) *Guarded {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Guarded{next: next, timeout: timeout, logger: log.Named("store")}
}

// ListInventory implements Store.
func (g *Guarded) ListInventory(ctx context.Context, shopID string) ([]model.InventoryItem, error) {
	return read(ctx, g, "list inventory", func(ctx context.Context) ([]model.InventoryItem, error) {
		return g.next.ListInventory(ctx, shopID)
	})
}

// FindCustomer implements Store.
func (g *Guarded) FindCustomer(ctx context.Context, phone string) (model.Customer, error) {
	return read(ctx, g, "find customer", func(ctx context.Context) (model.Customer, error) {
		return g.next.FindCustomer(ctx, phone)
	})
}

// ListOrders implements Store.
func (g *Guarded) ListOrders(ctx context.Context, phone string) ([]model.Order, error) {
	return read(ctx, g, "list orders", func(ctx context.Context) ([]model.Order, error) {
		return g.next.ListOrders(ctx, phone)
	})
}

// Ping implements Store.
func (g *Guarded) Ping(ctx context.Context) error {
	_, err := read(ctx, g, "ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.Ping(ctx)
	})
	return err
}

// CreateCustomer implements Store.
func (g *Guarded) CreateCustomer(ctx context.Context, c model.Customer) (model.Customer, error) {
	return write(ctx, g, "create customer", func(ctx context.Context) (model.Customer, error) {
		return g.next.CreateCustomer(ctx, c)
	})
}

// CreateOrder implements Store.
func (g *Guarded) CreateOrder(ctx context.Context, o model.Order) (string, error) {
	return write(ctx, g, "create order", func(ctx context.Context) (string, error) {
		return g.next.CreateOrder(ctx, o)
	})
}

// ApplyInventoryDelta implements Store.
func (g *Guarded) ApplyInventoryDelta(ctx context.Context, d model.InventoryDelta) error {
	_, err := write(ctx, g, "apply inventory delta", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.next.ApplyInventoryDelta(ctx, d)
	})
	return err
}

func read[T any](ctx context.Context, g *Guarded, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := bounded(ctx, g.timeout, fn)
	if err == nil || !retryable(ctx, err) {
		return v, model.Backend(op, err)
	}
	g.logger.Warn("store read failed, retrying", zap.String("op", op), zap.Error(err))
	v, err = bounded(ctx, g.timeout, fn)
	return v, model.Backend(op, err)
}

func write[T any](ctx context.Context, g *Guarded, op string, fn func(context.Context) (T, error)) (T, error) {
	v, err := bounded(ctx, g.timeout, fn)
	if err != nil && retryable(ctx, err) {
		g.logger.Error("store write failed", zap.String("op", op), zap.Error(err))
	}
	return v, model.Backend(op, err)
}

func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(ctx)
}

// retryable reports whether err is a transient failure worth another attempt.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return !errors.Is(err, model.ErrNotFound) &&
		!errors.Is(err, model.ErrValidation) &&
		!errors.Is(err, model.ErrInsufficientStock)
}
