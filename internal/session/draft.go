package session

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
)

// DraftStatus is the state of a draft order.
type DraftStatus string

const (
	DraftStatusDraft     DraftStatus = "draft"
	DraftStatusCommitted DraftStatus = "committed"
)

// DraftOrder is a session's cart. Line names are unique within a draft and
// the total is recomputed after every mutation.
type DraftOrder struct {
	lines   []model.LineItem
	total   decimal.Decimal
	notes   []string
	status  DraftStatus
	orderID string
}

// NewDraftOrder creates an empty draft.
func NewDraftOrder() *DraftOrder {
	return &DraftOrder{total: decimal.Zero, status: DraftStatusDraft}
}

// Lines returns a copy of the draft lines in insertion order.
func (d *DraftOrder) Lines() []model.LineItem {
	out := make([]model.LineItem, len(d.lines))
	copy(out, d.lines)
	return out
}

// Total returns the sum of line totals.
func (d *DraftOrder) Total() decimal.Decimal {
	return d.total
}

// Notes returns the free-text notes joined by newlines.
func (d *DraftOrder) Notes() string {
	return strings.Join(d.notes, "\n")
}

// AddNote appends a note.
func (d *DraftOrder) AddNote(note string) {
	note = strings.TrimSpace(note)
	if note != "" {
		d.notes = append(d.notes, note)
	}
}

// Status returns the draft status.
func (d *DraftOrder) Status() DraftStatus {
	return d.status
}

// OrderID returns the id assigned on commit.
func (d *DraftOrder) OrderID() string {
	return d.orderID
}

// IsEmpty reports whether the draft has no lines.
func (d *DraftOrder) IsEmpty() bool {
	return len(d.lines) == 0
}

// ItemCount returns the number of units across all lines.
func (d *DraftOrder) ItemCount() int {
	n := 0
	for _, l := range d.lines {
		n += l.Quantity
	}
	return n
}

// Line returns the line for name.
func (d *DraftOrder) Line(name string) (model.LineItem, bool) {
	if i := d.index(name); i >= 0 {
		return d.lines[i], true
	}
	return model.LineItem{}, false
}

func (d *DraftOrder) index(name string) int {
	key := model.ItemKey(name)
	for i, l := range d.lines {
		if model.ItemKey(l.Name) == key {
			return i
		}
	}
	return -1
}

// merge adds qty units of name, creating the line at unitPrice or merging
// into an existing one. A merged line takes the latest unit price.
func (d *DraftOrder) merge(name string, qty int, unitPrice decimal.Decimal) {
	if i := d.index(name); i >= 0 {
		d.lines[i].Quantity += qty
		d.lines[i].UnitPrice = unitPrice
	} else {
		d.lines = append(d.lines, model.LineItem{Name: name, Quantity: qty, UnitPrice: unitPrice})
	}
	d.recompute()
}

// reduce removes up to qty units from the line for name, dropping the line
// when it reaches zero. It returns the units removed.
func (d *DraftOrder) reduce(name string, qty int) int {
	i := d.index(name)
	if i < 0 {
		return 0
	}
	if qty <= 0 || qty >= d.lines[i].Quantity {
		removed := d.lines[i].Quantity
		d.lines = append(d.lines[:i], d.lines[i+1:]...)
		d.recompute()
		return removed
	}
	d.lines[i].Quantity -= qty
	d.recompute()
	return qty
}

// reset empties the draft and returns the removed lines.
func (d *DraftOrder) reset() []model.LineItem {
	lines := d.lines
	d.lines = nil
	d.notes = nil
	d.recompute()
	return lines
}

func (d *DraftOrder) markCommitted(orderID string) error {
	if d.status == DraftStatusCommitted {
		return fmt.Errorf("%w: order %s", model.ErrAlreadyCommitted, d.orderID)
	}
	d.status = DraftStatusCommitted
	d.orderID = orderID
	return nil
}

func (d *DraftOrder) recompute() {
	d.total = model.SumLines(d.lines)
}
