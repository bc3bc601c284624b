// Package inventory keeps the shared view of a shop's stock: a cached
// snapshot of canonical quantities from the backing store plus a ledger of
// quantities reserved by in-flight conversation drafts.
//
// For every item, Available == Canonical − Reserved, where Reserved is the
// sum of quantities held by all active sessions.
package inventory

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ordering-assistant/internal/cache"
	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
	"github.com/capitalize-ai/ordering-assistant/pkg/metrics"
)

// Source lists the canonical inventory of a shop.
type Source interface {
	ListInventory(ctx context.Context, shopID string) ([]model.InventoryItem, error)
}

type entry struct {
	item model.InventoryItem
	// reserved is held by uncommitted drafts.
	reserved int
	// pending is committed to orders but not yet acknowledged by the store.
	pending int
	// settled holds acknowledged sales a running fetch may not include yet.
	settled []settlement
}

type settlement struct {
	seq uint64
	qty int
}

// fetched is a store read tagged with the settle sequence current when the
// read started. Settlements after mark may be missing from items.
type fetched struct {
	items []model.InventoryItem
	mark  uint64
}

// Catalog is the shop-wide inventory view shared by all sessions.
type Catalog struct {
	shopID string
	cache  *cache.Cache[fetched]
	logger *logger.Logger

	mu         sync.Mutex
	order      []string
	entries    map[string]*entry
	generation uint64
	settleSeq  uint64
}

// NewCatalog creates a catalog backed by src and cached per opts.
func NewCatalog(shopID string, src Source, opts cache.Options, log *logger.Logger) *Catalog {
	c := &Catalog{
		shopID:  shopID,
		logger:  log.Named("inventory"),
		entries: make(map[string]*entry),
	}
	if opts.OnFetch == nil {
		opts.OnFetch = func(err error) { metrics.RecordCacheFetch("inventory", err) }
	}
	c.cache = cache.New(func(ctx context.Context) (fetched, error) {
		c.mu.Lock()
		mark := c.settleSeq
		c.mu.Unlock()
		items, err := src.ListInventory(ctx, shopID)
		return fetched{items: items, mark: mark}, err
	}, opts)
	return c
}

// ShopID returns the shop this catalog serves.
func (c *Catalog) ShopID() string {
	return c.shopID
}

// Snapshot refreshes the canonical view if the cache expired and returns a
// private copy of the inventory with quantities reduced by every active
// reservation. The copy is safe for the caller to mutate.
func (c *Catalog) Snapshot(ctx context.Context) ([]model.InventoryItem, error) {
	res, err := c.cache.Get(ctx)
	if err != nil {
		return nil, model.Backend("list inventory", err)
	}
	if res.Stale {
		c.logger.Warn("serving stale inventory snapshot", zap.Time("fetched_at", res.FetchedAt))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if res.Generation > c.generation {
		c.syncLocked(res.Value)
		c.generation = res.Generation
	}
	return c.viewLocked(), nil
}

// Refresh invalidates the cached snapshot so the next Snapshot refetches.
func (c *Catalog) Refresh() {
	c.cache.Invalidate()
}

// syncLocked installs canonical quantities from the store. Sales the store
// has not acknowledged yet, and sales acknowledged after the read started,
// are subtracted again so they are not counted as available.
func (c *Catalog) syncLocked(f fetched) {
	seen := make(map[string]bool, len(f.items))
	order := make([]string, 0, len(f.items))
	for _, it := range f.items {
		key := it.Key()
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		order = append(order, key)

		e, ok := c.entries[key]
		if !ok {
			e = &entry{}
			c.entries[key] = e
		}
		e.settled = slices.DeleteFunc(e.settled, func(st settlement) bool { return st.seq <= f.mark })
		unseen := 0
		for _, st := range e.settled {
			unseen += st.qty
		}
		e.item = it
		e.item.Quantity = it.Quantity - e.pending - unseen
		if it.MinStock > 0 && e.item.LowStock() {
			c.logger.Warn("low stock",
				zap.String("item", it.Name),
				zap.Int("quantity", e.item.Quantity),
				zap.Int("min_stock", it.MinStock),
			)
		}
	}

	for key, e := range c.entries {
		if seen[key] {
			continue
		}
		e.settled = slices.DeleteFunc(e.settled, func(st settlement) bool { return st.seq <= f.mark })
		if e.reserved == 0 && e.pending == 0 && len(e.settled) == 0 {
			delete(c.entries, key)
			continue
		}
		if e.item.Name == "" {
			// Tracked before any snapshot listed it.
			continue
		}
		// Removed upstream while still held: keep it last so releases land.
		order = append(order, key)
	}
	c.order = order
}

func (c *Catalog) viewLocked() []model.InventoryItem {
	out := make([]model.InventoryItem, 0, len(c.order))
	for _, key := range c.order {
		e := c.entries[key]
		it := e.item
		it.Quantity = max(e.item.Quantity-e.reserved, 0)
		out = append(out, it)
	}
	return out
}

// Reserve holds qty units of name for a draft. It fails with a
// *model.StockError when the shared available quantity is lower than qty.
func (c *Catalog) Reserve(name string, qty int) error {
	if qty <= 0 {
		return model.Validationf("quantity must be positive, got %d", qty)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[model.ItemKey(name)]
	if !ok || e.item.Name == "" {
		return model.NotFoundf("item %q", name)
	}
	available := e.item.Quantity - e.reserved
	if available < qty {
		metrics.ReservationsTotal.WithLabelValues("insufficient").Inc()
		return &model.StockError{Item: e.item.Name, Requested: qty, Available: max(available, 0)}
	}
	e.reserved += qty
	metrics.ReservationsTotal.WithLabelValues("reserved").Inc()
	return nil
}

// Release returns qty previously reserved units of name.
func (c *Catalog) Release(name string, qty int) {
	if qty <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[model.ItemKey(name)]
	if !ok {
		c.logger.Warn("release for unknown item", zap.String("item", name), zap.Int("quantity", qty))
		return
	}
	if qty > e.reserved {
		c.logger.Error("release exceeds reservation",
			zap.String("item", name),
			zap.Int("quantity", qty),
			zap.Int("reserved", e.reserved),
		)
		qty = e.reserved
	}
	e.reserved -= qty
	metrics.ReservationsTotal.WithLabelValues("released").Inc()
}

// Commit converts a reservation into a sale: the canonical quantity drops
// and the units are tracked as pending until Settle confirms the store
// applied the delta.
func (c *Catalog) Commit(name string, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[model.ItemKey(name)]
	if !ok || e.item.Name == "" {
		return model.NotFoundf("item %q", name)
	}
	if qty > e.reserved {
		return fmt.Errorf("commit of %d %s exceeds reservation of %d", qty, name, e.reserved)
	}
	e.reserved -= qty
	e.item.Quantity -= qty
	e.pending += qty
	return nil
}

// Settle records that the store applied a committed delta of qty units.
// Snapshots read before the settle keep the units subtracted.
func (c *Catalog) Settle(name string, qty int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[model.ItemKey(name)]
	if !ok {
		return
	}
	qty = min(qty, e.pending)
	if qty <= 0 {
		return
	}
	e.pending -= qty
	c.settleSeq++
	e.settled = append(e.settled, settlement{seq: c.settleSeq, qty: qty})
}

// Track records qty units of name as sold but not yet applied by the store,
// for deltas still queued from before a restart.
func (c *Catalog) Track(name string, qty int) {
	if qty <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	key := model.ItemKey(name)
	e, ok := c.entries[key]
	if !ok {
		e = &entry{}
		c.entries[key] = e
	}
	e.pending += qty
	if e.item.Name != "" {
		e.item.Quantity -= qty
	}
}

// Canonical returns the canonical quantity of name.
func (c *Catalog) Canonical(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[model.ItemKey(name)]; ok {
		return e.item.Quantity
	}
	return 0
}

// Reserved returns the quantity of name held by all drafts.
func (c *Catalog) Reserved(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[model.ItemKey(name)]; ok {
		return e.reserved
	}
	return 0
}

// Available returns Canonical − Reserved for name.
func (c *Catalog) Available(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[model.ItemKey(name)]; ok {
		return max(e.item.Quantity-e.reserved, 0)
	}
	return 0
}
