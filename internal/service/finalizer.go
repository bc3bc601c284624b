// Package service coordinates conversation sessions, the shared catalog, the
// language model and the backing store into the ordering assistant.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ordering-assistant/internal/clock"
	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/session"
	"github.com/capitalize-ai/ordering-assistant/internal/store"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
	"github.com/capitalize-ai/ordering-assistant/pkg/metrics"
	"github.com/capitalize-ai/ordering-assistant/pkg/tracing"
)

// EventPublisher publishes domain events. Implemented by nats.StreamManager.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *model.OrderPlacedEvent) error
	PublishSessionEnded(ctx context.Context, event *model.SessionEndedEvent) error
}

// DeltaQueue accepts inventory deltas for asynchronous reconciliation.
// Implemented by reconcile.Reconciler.
type DeltaQueue interface {
	Enqueue(ctx context.Context, deltas ...model.InventoryDelta) error
}

// Finalizer commits draft orders.
type Finalizer struct {
	shopID string
	store  store.Store
	deltas DeltaQueue
	events EventPublisher
	clock  clock.Clock
	logger *logger.Logger
}

// NewFinalizer creates a finalizer. events may be nil.
func NewFinalizer(shopID string, st store.Store, deltas DeltaQueue, events EventPublisher, clk clock.Clock, log *logger.Logger) *Finalizer {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Finalizer{
		shopID: shopID,
		store:  st,
		deltas: deltas,
		events: events,
		clock:  clk,
		logger: log.Named("finalizer"),
	}
}

// Finalize persists the session's draft as an order. On success the draft
// becomes committed, its reservations turn into sales and the canonical
// inventory decrement is queued for the backing store. If the store write
// fails the draft stays a draft with its reservations intact, so the
// customer can retry. A committed draft is never written twice.
func (f *Finalizer) Finalize(ctx context.Context, s *session.Session) (model.Order, error) {
	ctx, span := tracing.Tracer("service").Start(ctx, "Finalizer.Finalize")
	defer span.End()
	span.SetAttributes(attribute.String("customer.id", s.CustomerID))

	if err := s.CheckFinalizable(); err != nil {
		result := "rejected"
		if errors.Is(err, model.ErrAlreadyCommitted) {
			result = "duplicate"
		}
		metrics.OrdersTotal.WithLabelValues(result).Inc()
		return model.Order{}, err
	}

	draft := s.Draft()
	cust := s.Customer()
	order := model.Order{
		ShopID:        f.shopID,
		CustomerID:    cust.ID,
		CustomerPhone: s.CustomerID,
		CustomerName:  cust.Name,
		Items:         draft.Lines(),
		Total:         draft.Total(),
		Notes:         draft.Notes(),
		Status:        model.OrderStatusPending,
		Source:        s.Source(),
		CreatedAt:     f.clock.Now(),
	}

	id, err := f.store.CreateOrder(ctx, order)
	if err != nil {
		metrics.OrdersTotal.WithLabelValues("failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "create order failed")
		f.logger.Error("order not persisted",
			zap.String("customer_id", s.CustomerID),
			zap.Int("lines", len(order.Items)),
			zap.Error(err),
		)
		return model.Order{}, err
	}
	order.ID = id
	span.SetAttributes(attribute.String("order.id", id))

	if err := s.MarkCommitted(id); err != nil {
		// The order exists; the shared ledger disagrees with it until the
		// next resync.
		f.logger.Error("commit reservations",
			zap.String("order_id", id),
			zap.Error(err),
		)
	}

	deltas := make([]model.InventoryDelta, 0, len(order.Items))
	for _, l := range order.Items {
		deltas = append(deltas, model.InventoryDelta{
			Key:     model.DeltaKey(id, l.Name),
			ShopID:  f.shopID,
			OrderID: id,
			Item:    l.Name,
			Delta:   -l.Quantity,
		})
	}
	if f.deltas != nil {
		if err := f.deltas.Enqueue(context.WithoutCancel(ctx), deltas...); err != nil {
			f.logger.Error("queue inventory deltas",
				zap.String("order_id", id),
				zap.Error(err),
			)
		}
	}

	s.InvalidateOrderHistory()
	f.publish(ctx, order)

	metrics.OrdersTotal.WithLabelValues("committed").Inc()
	f.logger.Info("order placed",
		zap.String("order_id", id),
		zap.String("customer_id", s.CustomerID),
		zap.String("total", order.Total.StringFixed(2)),
		zap.String("source", string(order.Source)),
	)
	return order, nil
}

func (f *Finalizer) publish(ctx context.Context, order model.Order) {
	if f.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := f.events.PublishOrderPlaced(ctx, &model.OrderPlacedEvent{
		ID:        uuid.Must(uuid.NewV7()).String(),
		ShopID:    f.shopID,
		Type:      model.EventTypeOrderPlaced,
		Order:     order,
		CreatedAt: f.clock.Now(),
	})
	if err != nil {
		f.logger.Warn("publish order placed", zap.String("order_id", order.ID), zap.Error(err))
	}
}
