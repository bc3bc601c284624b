package intent

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrNoReply is returned when the model output holds no usable reply.
var ErrNoReply = errors.New("model returned no reply")

// Reply is a parsed model response.
type Reply struct {
	Text    string
	Actions []Action
	// Dropped describes actions that were unknown or malformed.
	Dropped []string
}

type envelope struct {
	Response string          `json:"response"`
	Actions  json.RawMessage `json:"actions"`
}

// ParseReply extracts the reply text and actions from raw model output.
// The output is expected to hold a JSON object {"response": ..., "actions": ...},
// possibly wrapped in prose or a code fence. Actions may be an array of
// {"type": kind, ...} objects or an object keyed by kind. Output with no
// JSON object is treated as a plain reply without actions.
func ParseReply(raw string) (Reply, error) {
	body := extractJSON(raw)
	if body == "" {
		text := strings.TrimSpace(raw)
		if text == "" {
			return Reply{}, ErrNoReply
		}
		return Reply{Text: text}, nil
	}

	var env envelope
	if err := json.Unmarshal([]byte(body), &env); err != nil {
		return Reply{}, fmt.Errorf("decode model reply: %w", err)
	}
	reply := Reply{Text: strings.TrimSpace(env.Response)}

	actions := bytes.TrimSpace(env.Actions)
	switch {
	case len(actions) == 0 || bytes.Equal(actions, []byte("null")):
	case actions[0] == '[':
		reply.Actions, reply.Dropped = parseActionList(actions)
	case actions[0] == '{':
		reply.Actions, reply.Dropped = parseActionObject(actions)
	default:
		reply.Dropped = append(reply.Dropped, "actions: expected array or object")
	}

	if reply.Text == "" && len(reply.Actions) == 0 {
		return reply, ErrNoReply
	}
	return reply, nil
}

// extractJSON returns the text between the first '{' and the last '}'
// after removing a surrounding code fence.
func extractJSON(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		if nl := strings.Index(s, "\n"); nl >= 0 {
			s = s[nl+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func parseActionList(data []byte) ([]Action, []string) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, []string{"actions: " + err.Error()}
	}
	var (
		actions []Action
		dropped []string
	)
	for i, item := range items {
		var kind string
		if raw, ok := item["type"]; ok {
			_ = json.Unmarshal(raw, &kind)
		} else if raw, ok := item["action"]; ok {
			_ = json.Unmarshal(raw, &kind)
		}
		if kind == "" {
			dropped = append(dropped, fmt.Sprintf("actions[%d]: missing type", i))
			continue
		}
		delete(item, "type")
		delete(item, "action")
		fields, err := json.Marshal(item)
		if err != nil {
			dropped = append(dropped, fmt.Sprintf("actions[%d]: %v", i, err))
			continue
		}
		got, err := decodeAction(Kind(kind), fields)
		if err != nil {
			dropped = append(dropped, fmt.Sprintf("actions[%d] %s: %v", i, kind, err))
			continue
		}
		actions = append(actions, got...)
	}
	return actions, dropped
}

func parseActionObject(data []byte) ([]Action, []string) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, []string{"actions: " + err.Error()}
	}
	var (
		actions []Action
		dropped []string
	)
	for _, kind := range applyOrder {
		raw, ok := fields[string(kind)]
		if !ok {
			continue
		}
		delete(fields, string(kind))
		got, err := decodeAction(kind, raw)
		if err != nil {
			dropped = append(dropped, fmt.Sprintf("%s: %v", kind, err))
			continue
		}
		actions = append(actions, got...)
	}
	for key := range fields {
		dropped = append(dropped, key+": unknown action")
	}
	return actions, dropped
}

type itemFields struct {
	Name        string   `json:"name"`
	Item        string   `json:"item"`
	Quantity    quantity `json:"quantity"`
	NewQuantity quantity `json:"new_quantity"`
}

func (f itemFields) name() string {
	if f.Name != "" {
		return strings.TrimSpace(f.Name)
	}
	return strings.TrimSpace(f.Item)
}

// decodeAction validates one action. A nil slice with a nil error means the
// action was present but switched off, e.g. "finalize_order": false.
func decodeAction(kind Kind, raw json.RawMessage) ([]Action, error) {
	switch kind {
	case KindAddItem:
		var f itemFields
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, err
		}
		a, err := addItem(f)
		if err != nil {
			return nil, err
		}
		return []Action{a}, nil

	case KindAddItems:
		var list []itemFields
		if err := json.Unmarshal(raw, &list); err != nil {
			var wrapped struct {
				Items []itemFields `json:"items"`
			}
			if err2 := json.Unmarshal(raw, &wrapped); err2 != nil {
				return nil, err
			}
			list = wrapped.Items
		}
		var out []Action
		for _, f := range list {
			a, err := addItem(f)
			if err != nil {
				return nil, err
			}
			out = append(out, a)
		}
		return out, nil

	case KindModifyItem:
		var f itemFields
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, err
		}
		if f.name() == "" {
			return nil, errors.New("missing name")
		}
		qty := f.NewQuantity
		if !qty.set {
			qty = f.Quantity
		}
		if !qty.set || qty.n < 0 {
			return nil, errors.New("missing or negative new_quantity")
		}
		return []Action{ModifyItem{Name: f.name(), NewQuantity: qty.n}}, nil

	case KindRemoveItem:
		var f itemFields
		if err := json.Unmarshal(raw, &f); err != nil {
			var name string
			if json.Unmarshal(raw, &name) != nil {
				return nil, err
			}
			f.Name = name
		}
		if f.name() == "" {
			return nil, errors.New("missing name")
		}
		if f.Quantity.n < 0 {
			return nil, errors.New("negative quantity")
		}
		return []Action{RemoveItem{Name: f.name(), Quantity: f.Quantity.n}}, nil

	case KindClearOrder:
		if on, err := flagValue(raw); err != nil || !on {
			return nil, err
		}
		return []Action{ClearOrder{}}, nil

	case KindUpdateCustomer:
		var f struct {
			Name    string `json:"name"`
			Address string `json:"address"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			return nil, err
		}
		if strings.TrimSpace(f.Name) == "" && strings.TrimSpace(f.Address) == "" {
			return nil, errors.New("no fields to update")
		}
		return []Action{UpdateCustomer{Name: strings.TrimSpace(f.Name), Address: strings.TrimSpace(f.Address)}}, nil

	case KindAddNote:
		var f struct {
			Text string `json:"text"`
			Note string `json:"note"`
		}
		if err := json.Unmarshal(raw, &f); err != nil {
			var text string
			if json.Unmarshal(raw, &text) != nil {
				return nil, err
			}
			f.Text = text
		}
		text := strings.TrimSpace(f.Text + f.Note)
		if text == "" {
			return nil, errors.New("empty note")
		}
		return []Action{AddNote{Text: text}}, nil

	case KindUpdateFlags:
		var flags map[string]bool
		if err := json.Unmarshal(raw, &flags); err != nil {
			return nil, err
		}
		if len(flags) == 0 {
			return nil, nil
		}
		return []Action{UpdateFlags{Flags: flags}}, nil

	case KindFinalizeOrder:
		if on, err := flagValue(raw); err != nil || !on {
			return nil, err
		}
		return []Action{FinalizeOrder{}}, nil

	case KindEndConversation:
		if on, err := flagValue(raw); err != nil || !on {
			return nil, err
		}
		return []Action{EndConversation{}}, nil

	default:
		return nil, errors.New("unknown action")
	}
}

func addItem(f itemFields) (Action, error) {
	if f.name() == "" {
		return nil, errors.New("missing name")
	}
	qty := f.Quantity.n
	if !f.Quantity.set {
		qty = 1
	}
	if qty <= 0 {
		return nil, fmt.Errorf("invalid quantity %d", qty)
	}
	return AddItem{Name: f.name(), Quantity: qty}, nil
}

// flagValue accepts true/false, an empty object or array (as true) and
// "true"/"false" strings.
func flagValue(raw json.RawMessage) (bool, error) {
	raw = bytes.TrimSpace(raw)
	switch {
	case len(raw) == 0:
		return false, nil
	case raw[0] == '{' || raw[0] == '[':
		return true, nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, fmt.Errorf("expected boolean, got %s", raw)
	}
	return strconv.ParseBool(s)
}

// quantity decodes a JSON number or numeric string.
type quantity struct {
	n   int
	set bool
}

func (q *quantity) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		var s string
		if json.Unmarshal(data, &s) != nil {
			return fmt.Errorf("invalid quantity %s", data)
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return fmt.Errorf("invalid quantity %q", s)
		}
	}
	if f != float64(int(f)) {
		return fmt.Errorf("quantity %v is not a whole number", f)
	}
	q.n = int(f)
	q.set = true
	return nil
}
