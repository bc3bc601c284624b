package intent

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/internal/session"
)

// Request is everything the model sees for one customer message.
type Request struct {
	ShopName     string
	Customer     model.Customer
	Summary      session.Summary
	Order        []model.LineItem
	Notes        string
	Inventory    []model.InventoryItem
	RecentOrders []model.Order
	History      []model.Turn
	Message      string
}

// maxRecentOrders bounds the order history shown to the model.
const maxRecentOrders = 3

const actionSchema = `Respond with a single JSON object and nothing else:
{
  "response": "<what you say to the customer>",
  "actions": [
    {"type": "add_item", "name": "<item>", "quantity": <n>},
    {"type": "add_items", "items": [{"name": "<item>", "quantity": <n>}]},
    {"type": "modify_item", "name": "<item>", "new_quantity": <n>},
    {"type": "remove_item", "name": "<item>", "quantity": <n, omit to remove the line>},
    {"type": "clear_order"},
    {"type": "update_customer", "name": "<name>", "address": "<address>"},
    {"type": "add_note", "text": "<delivery or order note>"},
    {"type": "update_flags", "flags": {"payment_discussed": true, "delivery_confirmed": true}},
    {"type": "finalize_order"},
    {"type": "end_conversation"}
  ]
}
Include only the actions the customer asked for, in the order they should happen.
Use "finalize_order" only after the customer confirms the order.
Never promise items that are not in the inventory list; the system checks stock.`

// BuildPrompt renders the model prompt for req.
func BuildPrompt(req Request) string {
	var b strings.Builder

	shop := req.ShopName
	if shop == "" {
		shop = "the shop"
	}
	fmt.Fprintf(&b, "You are a friendly ordering assistant for %s, taking grocery orders over chat.\n", shop)
	b.WriteString("Keep replies short and conversational. Quote prices in rupees.\n\n")

	b.WriteString("CUSTOMER\n")
	fmt.Fprintf(&b, "- phone: %s\n", req.Customer.Phone)
	if req.Customer.Name != "" {
		fmt.Fprintf(&b, "- name: %s\n", req.Customer.Name)
	}
	if req.Customer.Address != "" {
		fmt.Fprintf(&b, "- address: %s\n", req.Customer.Address)
	}
	fmt.Fprintf(&b, "- returning customer: %t\n\n", req.Summary.KnownCustomer)

	b.WriteString("CONVERSATION STATE\n")
	fmt.Fprintf(&b, "- stage: %s\n", req.Summary.Stage)
	var flags []string
	for _, f := range session.AllFlags {
		if req.Summary.Flags[f] {
			flags = append(flags, string(f))
		}
	}
	if len(flags) > 0 {
		fmt.Fprintf(&b, "- completed: %s\n", strings.Join(flags, ", "))
	}
	if req.Summary.LastTopic != "" {
		fmt.Fprintf(&b, "- last item discussed: %s\n", req.Summary.LastTopic)
	}
	b.WriteString("\n")

	b.WriteString("CURRENT ORDER\n")
	if len(req.Order) == 0 {
		b.WriteString("- (empty)\n")
	}
	for _, l := range req.Order {
		fmt.Fprintf(&b, "- %s x%d @ %s = %s\n", l.Name, l.Quantity, l.UnitPrice.StringFixed(2), l.Total().StringFixed(2))
	}
	if len(req.Order) > 0 {
		fmt.Fprintf(&b, "- total: %s (%d items)\n", req.Summary.Total.StringFixed(2), req.Summary.ItemCount)
	}
	if req.Notes != "" {
		fmt.Fprintf(&b, "- notes: %s\n", strings.ReplaceAll(req.Notes, "\n", "; "))
	}
	b.WriteString("\n")

	b.WriteString("AVAILABLE INVENTORY\n")
	listed := 0
	for _, it := range req.Inventory {
		if it.Quantity <= 0 {
			continue
		}
		listed++
		fmt.Fprintf(&b, "- %s: %s, %d in stock", it.Name, it.Price.StringFixed(2), it.Quantity)
		if it.Category != "" {
			fmt.Fprintf(&b, " [%s]", it.Category)
		}
		b.WriteString("\n")
	}
	if listed == 0 {
		b.WriteString("- (nothing in stock)\n")
	}
	b.WriteString("\n")

	if len(req.RecentOrders) > 0 {
		b.WriteString("RECENT ORDERS\n")
		orders := req.RecentOrders
		if len(orders) > maxRecentOrders {
			orders = orders[len(orders)-maxRecentOrders:]
		}
		for _, o := range orders {
			names := make([]string, len(o.Items))
			for i, l := range o.Items {
				names[i] = fmt.Sprintf("%s x%d", l.Name, l.Quantity)
			}
			fmt.Fprintf(&b, "- #%s on %s: %s (total %s)\n",
				o.ID, o.CreatedAt.Format("2006-01-02"), strings.Join(names, ", "), o.Total.StringFixed(2))
		}
		b.WriteString("\n")
	}

	if len(req.History) > 0 {
		b.WriteString("RECENT CHAT\n")
		for _, t := range req.History {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
		}
		b.WriteString("\n")
	}

	b.WriteString(actionSchema)
	fmt.Fprintf(&b, "\n\nCUSTOMER MESSAGE\n%s\n", req.Message)
	return b.String()
}
