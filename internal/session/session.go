// Package session owns per-customer conversation state: the draft order,
// the private inventory snapshot with its optimistic reservations, flow
// stage and flags, and bounded chat history. Sessions are held by a
// Registry and mutated only under the customer's lock from a LockManager.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/capitalize-ai/ordering-assistant/internal/cache"
	"github.com/capitalize-ai/ordering-assistant/internal/clock"
	"github.com/capitalize-ai/ordering-assistant/internal/inventory"
	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/resolver"
)

// DefaultHistorySize is the number of chat turns kept per session.
const DefaultHistorySize = 10

// Options configures a new Session.
type Options struct {
	Catalog     *inventory.Catalog
	Resolver    *resolver.Resolver
	Clock       clock.Clock
	HistorySize int
	// Orders caches the customer's past orders. Optional.
	Orders *cache.Cache[[]model.Order]
}

// Session is one customer's conversation. It is not safe for concurrent
// use; callers hold the customer's lock.
type Session struct {
	ConversationID string
	CustomerID     string

	customer model.Customer
	known    bool
	stage    Stage
	draft    *DraftOrder
	snapshot []model.InventoryItem
	flags    map[Flag]bool

	history     []model.Turn
	historySize int
	lastTopic   string
	source      model.OrderSource

	createdAt time.Time
	// lastActivity is read by the cleanup sweep without the customer lock.
	lastActivity atomic.Int64

	catalog  *inventory.Catalog
	resolver *resolver.Resolver
	clock    clock.Clock
	orders   *cache.Cache[[]model.Order]
}

// New creates a session in the greeting stage. A nil customer marks the
// customer as unknown.
func New(customerID string, customer *model.Customer, opts Options) *Session {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = DefaultHistorySize
	}
	if opts.Resolver == nil {
		opts.Resolver = resolver.New(nil)
	}
	now := opts.Clock.Now()
	s := &Session{
		ConversationID: uuid.Must(uuid.NewV7()).String(),
		CustomerID:     customerID,
		stage:          StageGreeting,
		draft:          NewDraftOrder(),
		flags:          make(map[Flag]bool, len(AllFlags)),
		historySize:    opts.HistorySize,
		source:         model.OrderSourceConversation,
		createdAt:      now,
		catalog:        opts.Catalog,
		resolver:       opts.Resolver,
		clock:          opts.Clock,
		orders:         opts.Orders,
	}
	s.lastActivity.Store(now.UnixNano())
	s.flags[FlagPhoneCollected] = customerID != ""
	if customer != nil {
		s.customer = *customer
		s.known = true
		s.flags[FlagCustomerVerified] = true
		s.flags[FlagAddressConfirmed] = customer.Address != ""
	} else {
		s.customer = model.Customer{Phone: customerID}
	}
	return s
}

// RefreshSnapshot replaces the private snapshot with the catalog's current
// shared view. The view already excludes this session's reservations.
func (s *Session) RefreshSnapshot(ctx context.Context) error {
	snap, err := s.catalog.Snapshot(ctx)
	if err != nil {
		return err
	}
	s.snapshot = snap
	return nil
}

// HasSnapshot reports whether a snapshot has been loaded.
func (s *Session) HasSnapshot() bool {
	return s.snapshot != nil
}

// Snapshot returns a copy of the private inventory snapshot.
func (s *Session) Snapshot() []model.InventoryItem {
	return model.CloneInventory(s.snapshot)
}

// SnapshotQuantity returns the quantity of name in the private snapshot, or
// -1 when the item is absent.
func (s *Session) SnapshotQuantity(name string) int {
	if i := s.snapshotIndex(name); i >= 0 {
		return s.snapshot[i].Quantity
	}
	return -1
}

func (s *Session) snapshotIndex(name string) int {
	key := model.ItemKey(name)
	for i, it := range s.snapshot {
		if it.Key() == key {
			return i
		}
	}
	return -1
}

func (s *Session) checkMutable() error {
	if s.draft.Status() == DraftStatusCommitted {
		return fmt.Errorf("%w: order %s", model.ErrAlreadyCommitted, s.draft.OrderID())
	}
	if s.stage == StageEnded {
		return model.Validationf("conversation has ended")
	}
	return nil
}

// AddItem resolves name against the private snapshot and reserves qty
// units. On any error the draft and snapshot are unchanged.
func (s *Session) AddItem(name string, qty int) (model.LineItem, error) {
	if err := s.checkMutable(); err != nil {
		return model.LineItem{}, err
	}
	if qty <= 0 {
		return model.LineItem{}, model.Validationf("quantity must be positive, got %d", qty)
	}
	m, ok := s.resolver.Resolve(name, s.snapshot)
	if !ok {
		return model.LineItem{}, model.NotFoundf("item %q", name)
	}
	if m.Item.Quantity < qty {
		return model.LineItem{}, &model.StockError{Item: m.Item.Name, Requested: qty, Available: m.Item.Quantity}
	}
	if err := s.reserve(m.Index, qty); err != nil {
		return model.LineItem{}, err
	}
	line, _ := s.draft.Line(m.Item.Name)
	return line, nil
}

// reserve takes qty units of snapshot entry i from the shared catalog and
// moves them into the draft.
func (s *Session) reserve(i, qty int) error {
	it := s.snapshot[i]
	if err := s.catalog.Reserve(it.Name, qty); err != nil {
		var stockErr *model.StockError
		if errors.As(err, &stockErr) {
			s.snapshot[i].Quantity = stockErr.Available
		}
		return err
	}
	s.snapshot[i].Quantity -= qty
	s.draft.merge(it.Name, qty, it.Price)
	s.flags[FlagOrderStarted] = true
	s.lastTopic = it.Name
	return nil
}

// lineFor finds the draft line a free-text name refers to.
func (s *Session) lineFor(name string) (model.LineItem, bool) {
	if line, ok := s.draft.Line(name); ok {
		return line, true
	}
	lines := s.draft.Lines()
	candidates := make([]model.InventoryItem, len(lines))
	for i, l := range lines {
		candidates[i] = model.InventoryItem{Name: l.Name}
	}
	m, ok := s.resolver.Resolve(name, candidates)
	if !ok {
		return model.LineItem{}, false
	}
	return lines[m.Index], true
}

// RemoveItem removes qty units of the line matching name and returns them
// to the snapshot. A qty of zero or less removes the whole line.
func (s *Session) RemoveItem(name string, qty int) (model.LineItem, error) {
	if err := s.checkMutable(); err != nil {
		return model.LineItem{}, err
	}
	line, ok := s.lineFor(name)
	if !ok {
		return model.LineItem{}, model.NotFoundf("%q is not in the order", name)
	}
	removed := s.release(line.Name, qty)
	line.Quantity = removed
	s.lastTopic = line.Name
	if s.draft.IsEmpty() {
		s.flags[FlagOrderStarted] = false
	}
	return line, nil
}

func (s *Session) release(name string, qty int) int {
	removed := s.draft.reduce(name, qty)
	if removed == 0 {
		return 0
	}
	s.catalog.Release(name, removed)
	if i := s.snapshotIndex(name); i >= 0 {
		s.snapshot[i].Quantity += removed
	}
	return removed
}

// ModifyItem sets the quantity of the line matching name to newQty. It
// behaves like a removal followed by an add of newQty, but applies only the
// difference so a failed increase leaves the existing line in place.
func (s *Session) ModifyItem(name string, newQty int) (model.LineItem, error) {
	if err := s.checkMutable(); err != nil {
		return model.LineItem{}, err
	}
	if newQty <= 0 {
		return s.RemoveItem(name, 0)
	}
	line, ok := s.lineFor(name)
	if !ok {
		return s.AddItem(name, newQty)
	}

	delta := newQty - line.Quantity
	switch {
	case delta < 0:
		s.release(line.Name, -delta)
	case delta > 0:
		i := s.snapshotIndex(line.Name)
		if i < 0 {
			return model.LineItem{}, model.NotFoundf("item %q", line.Name)
		}
		if s.snapshot[i].Quantity < delta {
			return model.LineItem{}, &model.StockError{
				Item:      line.Name,
				Requested: newQty,
				Available: line.Quantity + s.snapshot[i].Quantity,
			}
		}
		if err := s.reserve(i, delta); err != nil {
			var stockErr *model.StockError
			if errors.As(err, &stockErr) {
				stockErr.Requested = newQty
				stockErr.Available += line.Quantity
			}
			return model.LineItem{}, err
		}
	}
	s.lastTopic = line.Name
	updated, _ := s.draft.Line(line.Name)
	return updated, nil
}

// Clear returns every reservation and empties the draft.
func (s *Session) Clear() error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	s.releaseAll()
	s.flags[FlagOrderStarted] = false
	s.flags[FlagOrderComplete] = false
	s.flags[FlagPaymentDiscussed] = false
	s.flags[FlagDeliveryConfirmed] = false
	return nil
}

func (s *Session) releaseAll() {
	for _, l := range s.draft.reset() {
		s.catalog.Release(l.Name, l.Quantity)
		if i := s.snapshotIndex(l.Name); i >= 0 {
			s.snapshot[i].Quantity += l.Quantity
		}
	}
}

// ImageLineResult reports how one image-derived line was handled.
type ImageLineResult struct {
	Query     string `json:"query"`
	Requested int    `json:"requested"`
	Matched   string `json:"matched,omitempty"`
	Score     int    `json:"score,omitempty"`
	Fulfilled int    `json:"fulfilled"`
	Reason    string `json:"reason,omitempty"`
}

// AddImageLine matches an image-derived line by string similarity and
// reserves as much of the requested quantity as is available.
func (s *Session) AddImageLine(query string, qty int) (ImageLineResult, error) {
	res := ImageLineResult{Query: query, Requested: qty}
	if err := s.checkMutable(); err != nil {
		return res, err
	}
	if qty <= 0 {
		res.Reason = "invalid quantity"
		return res, nil
	}
	m, ok := s.resolver.MatchSimilar(query, s.snapshot)
	if !ok {
		res.Reason = "no matching item"
		return res, nil
	}
	res.Matched = m.Item.Name
	res.Score = m.Score

	want := min(qty, s.snapshot[m.Index].Quantity)
	for want > 0 {
		err := s.reserve(m.Index, want)
		if err == nil {
			res.Fulfilled = want
			break
		}
		var stockErr *model.StockError
		if !errors.As(err, &stockErr) {
			return res, err
		}
		want = min(want, stockErr.Available)
	}
	if res.Fulfilled > 0 {
		s.source = model.OrderSourceImage
	}
	switch {
	case res.Fulfilled == 0:
		res.Reason = "out of stock"
	case res.Fulfilled < qty:
		res.Reason = "partially available"
	}
	return res, nil
}

// CheckFinalizable reports whether the draft may be committed.
func (s *Session) CheckFinalizable() error {
	if s.draft.Status() == DraftStatusCommitted {
		return fmt.Errorf("%w: order %s", model.ErrAlreadyCommitted, s.draft.OrderID())
	}
	if s.stage == StageEnded {
		return model.Validationf("conversation has ended")
	}
	if s.draft.IsEmpty() {
		return model.Validationf("order is empty")
	}
	return nil
}

// MarkCommitted records a persisted order: the draft becomes committed and
// its reservations become sales in the catalog.
func (s *Session) MarkCommitted(orderID string) error {
	if err := s.draft.markCommitted(orderID); err != nil {
		return err
	}
	var errs []error
	for _, l := range s.draft.Lines() {
		if err := s.catalog.Commit(l.Name, l.Quantity); err != nil {
			errs = append(errs, err)
		}
	}
	s.flags[FlagOrderComplete] = true
	if s.stage == StageActiveOrdering {
		s.stage = StageFinalized
	}
	return errors.Join(errs...)
}

// End moves the session to the terminal stage and returns any uncommitted
// reservations to the shared inventory. It is safe to call more than once.
func (s *Session) End() {
	if s.stage == StageEnded {
		return
	}
	if s.draft.Status() == DraftStatusDraft {
		s.releaseAll()
	}
	s.flags[FlagCallEnding] = true
	s.stage = StageEnded
}

// Source reports how the draft was captured: image_upload once any line
// came from an image-derived list.
func (s *Session) Source() model.OrderSource {
	return s.source
}

// Ended reports whether the session reached the terminal stage.
func (s *Session) Ended() bool {
	return s.stage == StageEnded
}

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	return s.stage
}

// Advance moves the session to stage to.
func (s *Session) Advance(to Stage) error {
	if !CanTransition(s.stage, to) {
		return model.Validationf("cannot move from %s to %s", s.stage, to)
	}
	s.stage = to
	return nil
}

// Draft returns the draft order.
func (s *Session) Draft() *DraftOrder {
	return s.draft
}

// AddNote appends a note to the draft.
func (s *Session) AddNote(note string) error {
	if err := s.checkMutable(); err != nil {
		return err
	}
	s.draft.AddNote(note)
	return nil
}

// Customer returns the customer profile.
func (s *Session) Customer() model.Customer {
	return s.customer
}

// Known reports whether the customer exists in the backing store.
func (s *Session) Known() bool {
	return s.known
}

// SetCustomer installs a persisted customer record.
func (s *Session) SetCustomer(c model.Customer) {
	s.customer = c
	s.known = true
	s.flags[FlagCustomerVerified] = true
	s.flags[FlagAddressConfirmed] = c.Address != ""
}

// UpdateCustomer changes the in-session name or address. Empty values are ignored.
func (s *Session) UpdateCustomer(name, address string) {
	if name = strings.TrimSpace(name); name != "" {
		s.customer.Name = name
	}
	if address = strings.TrimSpace(address); address != "" {
		s.customer.Address = address
		s.flags[FlagAddressConfirmed] = true
	}
}

// SetFlag sets a flow flag.
func (s *Session) SetFlag(f Flag, v bool) {
	s.flags[f] = v
}

// Flag returns a flow flag.
func (s *Session) Flag(f Flag) bool {
	return s.flags[f]
}

// Flags returns a copy of all flow flags.
func (s *Session) Flags() map[Flag]bool {
	out := make(map[Flag]bool, len(AllFlags))
	for _, f := range AllFlags {
		out[f] = s.flags[f]
	}
	return out
}

// AppendTurn records a chat turn, evicting the oldest beyond the history size.
func (s *Session) AppendTurn(role model.Role, content string) {
	s.history = append(s.history, model.Turn{Role: role, Content: content, CreatedAt: s.clock.Now()})
	if over := len(s.history) - s.historySize; over > 0 {
		s.history = append(s.history[:0], s.history[over:]...)
	}
}

// History returns a copy of the retained chat turns, oldest first.
func (s *Session) History() []model.Turn {
	out := make([]model.Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Touch marks the session active now.
func (s *Session) Touch() {
	s.lastActivity.Store(s.clock.Now().UnixNano())
}

// LastActivity returns when the session last processed a message.
func (s *Session) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load()).UTC()
}

// IdleFor reports whether the session has been inactive for at least d.
func (s *Session) IdleFor(d time.Duration) bool {
	return s.clock.Now().Sub(s.LastActivity()) >= d
}

// OrderHistory returns the customer's past orders, served from cache.
func (s *Session) OrderHistory(ctx context.Context) ([]model.Order, error) {
	if s.orders == nil || !s.known {
		return nil, nil
	}
	res, err := s.orders.Get(ctx)
	if err != nil {
		return nil, err
	}
	return res.Value, nil
}

// InvalidateOrderHistory forces the next OrderHistory call to refetch.
func (s *Session) InvalidateOrderHistory() {
	if s.orders != nil {
		s.orders.Invalidate()
	}
}

// Summary is the compact state description handed to the language model.
type Summary struct {
	Stage          Stage           `json:"stage"`
	Flags          map[Flag]bool   `json:"flags"`
	CustomerName   string          `json:"customer_name,omitempty"`
	KnownCustomer  bool            `json:"known_customer"`
	ItemCount      int             `json:"item_count"`
	Total          decimal.Decimal `json:"total"`
	AvailableItems int             `json:"available_items"`
	LastTopic      string          `json:"last_topic,omitempty"`
}

// Summary describes the session state.
func (s *Session) Summary() Summary {
	available := 0
	for _, it := range s.snapshot {
		if it.Quantity > 0 {
			available++
		}
	}
	return Summary{
		Stage:          s.stage,
		Flags:          s.Flags(),
		CustomerName:   s.customer.Name,
		KnownCustomer:  s.known,
		ItemCount:      s.draft.ItemCount(),
		Total:          s.draft.Total(),
		AvailableItems: available,
		LastTopic:      s.lastTopic,
	}
}

// Info is a diagnostic view of a session.
type Info struct {
	CustomerID     string          `json:"customer_id"`
	ConversationID string          `json:"conversation_id"`
	CustomerName   string          `json:"customer_name,omitempty"`
	Stage          Stage           `json:"stage"`
	Status         DraftStatus     `json:"status"`
	Lines          int             `json:"lines"`
	Total          decimal.Decimal `json:"total"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivity   time.Time       `json:"last_activity"`
}

// Info returns a diagnostic view of the session.
func (s *Session) Info() Info {
	return Info{
		CustomerID:     s.CustomerID,
		ConversationID: s.ConversationID,
		CustomerName:   s.customer.Name,
		Stage:          s.stage,
		Status:         s.draft.Status(),
		Lines:          len(s.draft.lines),
		Total:          s.draft.Total(),
		CreatedAt:      s.createdAt,
		LastActivity:   s.LastActivity(),
	}
}
