package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ordering-assistant/internal/cache"
	"github.com/capitalize-ai/ordering-assistant/internal/clock"
	"github.com/capitalize-ai/ordering-assistant/internal/intent"
	"github.com/capitalize-ai/ordering-assistant/internal/inventory"
	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/resolver"
	"github.com/capitalize-ai/ordering-assistant/internal/session"
	"github.com/capitalize-ai/ordering-assistant/internal/store"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
	"github.com/capitalize-ai/ordering-assistant/pkg/metrics"
	"github.com/capitalize-ai/ordering-assistant/pkg/tracing"
)

// Config holds assistant settings.
type Config struct {
	ShopID          string
	ShopName        string
	HistorySize     int
	OrderHistoryTTL time.Duration
}

// Deps are the collaborators of an Assistant. Events and Clock are optional.
type Deps struct {
	Store       store.Store
	Catalog     *inventory.Catalog
	Resolver    *resolver.Resolver
	Interpreter intent.Interpreter
	Registry    *session.Registry
	Locks       *session.LockManager
	Finalizer   *Finalizer
	Events      EventPublisher
	Clock       clock.Clock
}

// Assistant serves customer messages. Messages for one customer are handled
// one at a time; different customers proceed in parallel.
type Assistant struct {
	cfg         Config
	store       store.Store
	catalog     *inventory.Catalog
	resolver    *resolver.Resolver
	interpreter intent.Interpreter
	registry    *session.Registry
	locks       *session.LockManager
	finalizer   *Finalizer
	events      EventPublisher
	clock       clock.Clock
	logger      *logger.Logger
}

// NewAssistant creates an assistant.
func NewAssistant(cfg Config, deps Deps, log *logger.Logger) *Assistant {
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if cfg.ShopName == "" {
		cfg.ShopName = "our store"
	}
	if cfg.OrderHistoryTTL <= 0 {
		cfg.OrderHistoryTTL = 10 * time.Minute
	}
	return &Assistant{
		cfg:         cfg,
		store:       deps.Store,
		catalog:     deps.Catalog,
		resolver:    deps.Resolver,
		interpreter: deps.Interpreter,
		registry:    deps.Registry,
		locks:       deps.Locks,
		finalizer:   deps.Finalizer,
		events:      deps.Events,
		clock:       deps.Clock,
		logger:      log.Named("assistant"),
	}
}

// Handle processes one customer message and returns the reply. Backend and
// model failures become apologetic replies; only a missing customer id,
// model.ErrBusy and context errors are returned.
func (a *Assistant) Handle(ctx context.Context, customerID, message string) (string, error) {
	ctx, span := tracing.Tracer("service").Start(ctx, "Assistant.Handle")
	defer span.End()

	customerID = strings.TrimSpace(customerID)
	message = strings.TrimSpace(message)
	if customerID == "" {
		metrics.MessagesTotal.WithLabelValues("invalid").Inc()
		return "", model.Validationf("customer id is required")
	}
	span.SetAttributes(attribute.String("customer.id", customerID))

	release, err := a.locks.Acquire(ctx, customerID)
	if err != nil {
		if errors.Is(err, model.ErrBusy) {
			metrics.MessagesTotal.WithLabelValues("busy").Inc()
		}
		return "", err
	}
	defer release()

	s, created, err := a.registry.GetOrCreate(ctx, customerID, a.newSession)
	if err != nil {
		a.logger.Error("start session", zap.String("customer_id", customerID), zap.Error(err))
		metrics.MessagesTotal.WithLabelValues("backend_error").Inc()
		return replyBackendDown, nil
	}
	log := a.logger.WithCustomer(customerID, s.ConversationID)
	span.SetAttributes(attribute.String("conversation.id", s.ConversationID))

	s.Touch()
	if !created {
		if err := s.RefreshSnapshot(ctx); err != nil {
			log.Warn("inventory refresh failed, using previous snapshot", zap.Error(err))
		}
	}

	var reply string
	if message == "" {
		reply = replyEmptyMessage
	} else {
		reply = a.respond(ctx, s, message, log)
	}

	s.AppendTurn(model.RoleUser, message)
	s.AppendTurn(model.RoleAssistant, reply)
	s.Touch()

	if s.Ended() {
		a.evict(ctx, s, "ended")
	}
	metrics.MessagesTotal.WithLabelValues("ok").Inc()
	return reply, nil
}

// newSession builds a session for a customer's first message.
func (a *Assistant) newSession(ctx context.Context, customerID string) (*session.Session, error) {
	var known *model.Customer
	c, err := a.store.FindCustomer(ctx, customerID)
	switch {
	case err == nil:
		known = &c
	case errors.Is(err, model.ErrNotFound):
	default:
		return nil, err
	}

	orders := cache.New(func(ctx context.Context) ([]model.Order, error) {
		return a.store.ListOrders(ctx, customerID)
	}, cache.Options{
		TTL:     a.cfg.OrderHistoryTTL,
		Policy:  cache.PolicyServeStale,
		Clock:   a.clock,
		OnFetch: func(err error) { metrics.RecordCacheFetch("orders", err) },
	})

	s := session.New(customerID, known, session.Options{
		Catalog:     a.catalog,
		Resolver:    a.resolver,
		Clock:       a.clock,
		HistorySize: a.cfg.HistorySize,
		Orders:      orders,
	})
	if err := s.RefreshSnapshot(ctx); err != nil {
		return nil, err
	}
	if known != nil {
		if err := s.Advance(session.StageActiveOrdering); err != nil {
			return nil, err
		}
	}
	a.logger.Info("session started",
		zap.String("customer_id", customerID),
		zap.String("conversation_id", s.ConversationID),
		zap.Bool("known_customer", known != nil),
	)
	return s, nil
}

// respond produces the reply for one message. It runs under the customer lock.
func (a *Assistant) respond(ctx context.Context, s *session.Session, message string, log *logger.Logger) string {
	if isTermination(message) {
		return a.endConversation(s)
	}

	switch s.Stage() {
	case session.StageGreeting:
		_ = s.Advance(session.StageIdentityCollection)
		return fmt.Sprintf(replyWelcomeNew, a.cfg.ShopName)

	case session.StageIdentityCollection:
		name := cleanName(message)
		if name == "" {
			return replyAskName
		}
		s.UpdateCustomer(name, "")
		_ = s.Advance(session.StageAddressCollection)
		return fmt.Sprintf(replyAskAddress, name)

	case session.StageAddressCollection:
		return a.register(ctx, s, message, log)
	}

	return a.converse(ctx, s, message, log)
}

// register persists a new customer once the delivery address is known.
// The session is left unchanged when the store write fails.
func (a *Assistant) register(ctx context.Context, s *session.Session, address string, log *logger.Logger) string {
	if len([]rune(address)) < 5 {
		return replyAskFullAddress
	}
	c := s.Customer()
	c.Phone = s.CustomerID
	c.Address = address
	c.CreatedAt = a.clock.Now()

	saved, err := a.store.CreateCustomer(ctx, c)
	if err != nil {
		log.Error("register customer", zap.Error(err))
		return replyBackendDown
	}
	s.SetCustomer(saved)
	s.SetFlag(session.FlagAddressConfirmed, true)
	_ = s.Advance(session.StageActiveOrdering)
	log.Info("customer registered", zap.String("customer_ref", saved.ID))
	return fmt.Sprintf(replyRegistered, saved.Name)
}

// converse asks the interpreter and applies the actions it returns.
func (a *Assistant) converse(ctx context.Context, s *session.Session, message string, log *logger.Logger) string {
	req := a.buildRequest(ctx, s, message, log)
	reply, err := a.interpreter.Interpret(ctx, req)
	if err != nil {
		if errors.Is(err, model.ErrBackendUnavailable) {
			log.Error("interpret message", zap.Error(err))
			return replyBackendDown
		}
		log.Warn("interpret message", zap.Error(err))
		return replyRephrase
	}

	out := a.apply(ctx, s, reply.Actions, log)
	var parts []string
	if !out.failed && reply.Text != "" {
		parts = append(parts, reply.Text)
	}
	parts = append(parts, out.notes...)
	if len(parts) == 0 {
		return replyRephrase
	}
	return strings.Join(parts, "\n")
}

func (a *Assistant) buildRequest(ctx context.Context, s *session.Session, message string, log *logger.Logger) intent.Request {
	recent, err := s.OrderHistory(ctx)
	if err != nil {
		log.Warn("order history unavailable", zap.Error(err))
	}
	return intent.Request{
		ShopName:     a.cfg.ShopName,
		Customer:     s.Customer(),
		Summary:      s.Summary(),
		Order:        s.Draft().Lines(),
		Notes:        s.Draft().Notes(),
		Inventory:    s.Snapshot(),
		RecentOrders: recent,
		History:      s.History(),
		Message:      message,
	}
}

// outcome collects the clarifications produced while applying actions.
type outcome struct {
	notes  []string
	failed bool
}

func (o *outcome) fail(note string) {
	o.notes = append(o.notes, note)
	o.failed = true
}

// apply executes actions in order. A failed action is reported to the
// customer and never aborts the remaining actions.
func (a *Assistant) apply(ctx context.Context, s *session.Session, actions []intent.Action, log *logger.Logger) outcome {
	var out outcome
	end := false
	for _, act := range actions {
		switch act := act.(type) {
		case intent.AddItem:
			if _, err := s.AddItem(act.Name, act.Quantity); err != nil {
				out.fail(describe(err, act.Name))
			}
		case intent.ModifyItem:
			if _, err := s.ModifyItem(act.Name, act.NewQuantity); err != nil {
				out.fail(describe(err, act.Name))
			}
		case intent.RemoveItem:
			if _, err := s.RemoveItem(act.Name, act.Quantity); err != nil {
				out.fail(describe(err, act.Name))
			}
		case intent.ClearOrder:
			if err := s.Clear(); err != nil {
				out.fail(describe(err, ""))
			}
		case intent.UpdateCustomer:
			s.UpdateCustomer(act.Name, act.Address)
		case intent.AddNote:
			if err := s.AddNote(act.Text); err != nil {
				out.fail(describe(err, ""))
			}
		case intent.UpdateFlags:
			a.updateFlags(s, act.Flags, log)
		case intent.FinalizeOrder:
			order, err := a.finalizer.Finalize(ctx, s)
			if err != nil {
				out.fail(describeFinalize(err, s))
				continue
			}
			out.notes = append(out.notes, fmt.Sprintf(replyOrderPlaced, order.ID, order.Total.StringFixed(2)))
		case intent.EndConversation:
			end = true
		default:
			log.Warn("unhandled action", zap.String("kind", string(act.Kind())))
		}
	}
	if end {
		out.notes = append(out.notes, a.endConversation(s))
	}
	return out
}

// Only flags that describe the conversation itself may be set by the model.
var modelFlags = map[session.Flag]bool{
	session.FlagPaymentDiscussed:  true,
	session.FlagDeliveryConfirmed: true,
}

func (a *Assistant) updateFlags(s *session.Session, flags map[string]bool, log *logger.Logger) {
	for name, v := range flags {
		f, err := session.ParseFlag(name)
		if err != nil || !modelFlags[f] {
			log.Debug("ignoring flag update", zap.String("flag", name))
			continue
		}
		s.SetFlag(f, v)
	}
}

// endConversation ends s and returns the farewell. The caller evicts it.
func (a *Assistant) endConversation(s *session.Session) string {
	committed := s.Draft().Status() == session.DraftStatusCommitted
	s.End()
	if committed {
		return fmt.Sprintf(replyGoodbyeOrdered, s.Draft().OrderID())
	}
	if s.Draft().IsEmpty() {
		return replyGoodbye
	}
	return replyGoodbyeCleared
}

// evict removes an ended session from the registry. It runs under the
// customer lock.
func (a *Assistant) evict(ctx context.Context, s *session.Session, reason string) {
	if !a.registry.Remove(s.CustomerID, s) {
		return
	}
	metrics.SessionsEvictedTotal.WithLabelValues(reason).Inc()
	a.publishEnded(ctx, s, reason)
}

// OnIdleEvict is the cleanup service hook for sessions evicted while idle.
func (a *Assistant) OnIdleEvict(ctx context.Context, s *session.Session) {
	a.publishEnded(ctx, s, "idle")
}

func (a *Assistant) publishEnded(ctx context.Context, s *session.Session, reason string) {
	if a.events == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	err := a.events.PublishSessionEnded(ctx, &model.SessionEndedEvent{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ShopID:         a.cfg.ShopID,
		Type:           model.EventTypeSessionEnded,
		CustomerID:     s.CustomerID,
		ConversationID: s.ConversationID,
		Reason:         reason,
		OrderID:        s.Draft().OrderID(),
		CreatedAt:      a.clock.Now(),
	})
	if err != nil {
		a.logger.Warn("publish session ended",
			zap.String("customer_id", s.CustomerID),
			zap.Error(err),
		)
	}
}

// End closes a customer's session from outside the conversation, returning
// its reservations. It reports model.ErrNotFound when there is no session.
func (a *Assistant) End(ctx context.Context, customerID string) error {
	release, err := a.locks.Acquire(ctx, customerID)
	if err != nil {
		return err
	}
	defer release()

	s, ok := a.registry.Get(customerID)
	if !ok {
		return model.NotFoundf("session for %q", customerID)
	}
	s.End()
	a.evict(ctx, s, "closed")
	return nil
}

// ListActive describes every session in the registry. Sessions busy with a
// message are omitted.
func (a *Assistant) ListActive(ctx context.Context) []session.Info {
	keys := a.registry.Keys()
	infos := make([]session.Info, 0, len(keys))
	for _, key := range keys {
		release, err := a.locks.Acquire(ctx, key)
		if err != nil {
			if errors.Is(err, model.ErrBusy) {
				continue
			}
			break
		}
		if s, ok := a.registry.Get(key); ok {
			infos = append(infos, s.Info())
		}
		release()
	}
	return infos
}

// AddImageItems adds lines read from an image of a shopping list to the
// customer's draft. Each line is matched by similarity and filled with
// whatever quantity is available.
func (a *Assistant) AddImageItems(ctx context.Context, customerID string, lines []model.ImageLine) ([]session.ImageLineResult, error) {
	ctx, span := tracing.Tracer("service").Start(ctx, "Assistant.AddImageItems")
	defer span.End()

	customerID = strings.TrimSpace(customerID)
	if customerID == "" {
		return nil, model.Validationf("customer id is required")
	}
	if len(lines) == 0 {
		return nil, model.Validationf("no items in image order")
	}

	release, err := a.locks.Acquire(ctx, customerID)
	if err != nil {
		return nil, err
	}
	defer release()

	s, created, err := a.registry.GetOrCreate(ctx, customerID, a.newSession)
	if err != nil {
		return nil, model.Backend("start session", err)
	}
	s.Touch()
	if !created {
		if err := s.RefreshSnapshot(ctx); err != nil {
			a.logger.Warn("inventory refresh failed, using previous snapshot",
				zap.String("customer_id", customerID),
				zap.Error(err),
			)
		}
	}

	results := make([]session.ImageLineResult, 0, len(lines))
	fulfilled := 0
	for _, l := range lines {
		res, err := s.AddImageLine(l.Item, l.Quantity)
		if err != nil {
			return results, err
		}
		if res.Fulfilled > 0 {
			fulfilled++
		}
		results = append(results, res)
	}
	s.AppendTurn(model.RoleAssistant, fmt.Sprintf(replyImageAdded, fulfilled, len(lines)))
	span.SetAttributes(
		attribute.Int("image.lines", len(lines)),
		attribute.Int("image.fulfilled", fulfilled),
	)
	return results, nil
}
