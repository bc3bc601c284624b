// Package intent turns model output into validated, typed actions and
// builds the prompt that asks the model for them.
package intent

// Kind names an action in the model's response schema.
type Kind string

const (
	KindAddItem         Kind = "add_item"
	KindAddItems        Kind = "add_items"
	KindModifyItem      Kind = "modify_item"
	KindRemoveItem      Kind = "remove_item"
	KindClearOrder      Kind = "clear_order"
	KindUpdateCustomer  Kind = "update_customer"
	KindAddNote         Kind = "add_note"
	KindUpdateFlags     Kind = "update_flags"
	KindFinalizeOrder   Kind = "finalize_order"
	KindEndConversation Kind = "end_conversation"
)

// applyOrder is the order in which actions given as a keyed object are
// applied: cart edits first, finalize and end last.
var applyOrder = []Kind{
	KindClearOrder,
	KindRemoveItem,
	KindModifyItem,
	KindAddItem,
	KindAddItems,
	KindUpdateCustomer,
	KindAddNote,
	KindUpdateFlags,
	KindFinalizeOrder,
	KindEndConversation,
}

// Action is one structured instruction from the model.
type Action interface {
	Kind() Kind
}

// AddItem adds Quantity units of a free-text item name.
type AddItem struct {
	Name     string
	Quantity int
}

// ModifyItem sets the quantity of an existing line.
type ModifyItem struct {
	Name        string
	NewQuantity int
}

// RemoveItem removes Quantity units of a line, or the whole line when
// Quantity is zero.
type RemoveItem struct {
	Name     string
	Quantity int
}

// ClearOrder empties the draft.
type ClearOrder struct{}

// UpdateCustomer changes the customer's name or address.
type UpdateCustomer struct {
	Name    string
	Address string
}

// AddNote appends a note to the order.
type AddNote struct {
	Text string
}

// UpdateFlags sets conversation flags the model is allowed to drive.
type UpdateFlags struct {
	Flags map[string]bool
}

// FinalizeOrder asks to commit the draft.
type FinalizeOrder struct{}

// EndConversation asks to end the session.
type EndConversation struct{}

func (AddItem) Kind() Kind         { return KindAddItem }
func (ModifyItem) Kind() Kind      { return KindModifyItem }
func (RemoveItem) Kind() Kind      { return KindRemoveItem }
func (ClearOrder) Kind() Kind      { return KindClearOrder }
func (UpdateCustomer) Kind() Kind  { return KindUpdateCustomer }
func (AddNote) Kind() Kind         { return KindAddNote }
func (UpdateFlags) Kind() Kind     { return KindUpdateFlags }
func (FinalizeOrder) Kind() Kind   { return KindFinalizeOrder }
func (EndConversation) Kind() Kind { return KindEndConversation }
