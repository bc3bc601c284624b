package intent

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ordering-assistant/internal/llm"
	"github.com/capitalize-ai/ordering-assistant/internal/model"
	"github.com/capitalize-ai/ordering-assistant/pkg/logger"
)

// Interpreter turns a customer message plus session context into a reply
// and actions.
type Interpreter interface {
	Interpret(ctx context.Context, req Request) (Reply, error)
}

const systemPrompt = "You take grocery orders over chat. Answer only with the JSON object the user prompt describes."

// LLMInterpreter asks a language model.
type LLMInterpreter struct {
	client      llm.Client
	model       string
	maxTokens   int
	temperature float64
	logger      *logger.Logger
}

// NewLLMInterpreter creates an interpreter backed by client.
func NewLLMInterpreter(client llm.Client, modelName string, log *logger.Logger) *LLMInterpreter {
	return &LLMInterpreter{
		client:      client,
		model:       modelName,
		maxTokens:   1024,
		temperature: 0.2,
		logger:      log.Named("intent"),
	}
}

// Interpret sends the prompt for req and parses the response. Transport
// failures are reported as model.ErrBackendUnavailable.
func (i *LLMInterpreter) Interpret(ctx context.Context, req Request) (Reply, error) {
	resp, err := i.client.Complete(ctx, &llm.CompletionRequest{
		Model:       i.model,
		System:      systemPrompt,
		JSON:        true,
		Messages:    []llm.ChatMessage{{Role: "user", Content: BuildPrompt(req)}},
		MaxTokens:   i.maxTokens,
		Temperature: i.temperature,
	})
	if err != nil {
		return Reply{}, model.Backend("language model", err)
	}

	reply, err := ParseReply(resp.Content)
	if err != nil {
		i.logger.Warn("unparseable model reply",
			zap.Error(err),
			zap.String("stop_reason", resp.StopReason),
			zap.Int("length", len(resp.Content)),
		)
		return Reply{}, err
	}
	if len(reply.Dropped) > 0 {
		i.logger.Warn("dropped model actions", zap.Strings("dropped", reply.Dropped))
	}
	i.logger.Debug("model reply parsed",
		zap.Int("actions", len(reply.Actions)),
		zap.Int("tokens_in", resp.TokensIn),
		zap.Int("tokens_out", resp.TokensOut),
		zap.Int64("latency_ms", resp.LatencyMs),
	)
	return reply, nil
}

// RuleInterpreter understands a handful of plain commands without a
// language model. It backs the console when no model key is configured.
//
//	add 2 milk | 2 milk | remove milk | change milk to 3 | clear | note <text> | done
type RuleInterpreter struct{}

var (
	addPattern    = regexp.MustCompile(`^(?:add\s+)?(\d+)\s+(.+)$`)
	addOnePattern = regexp.MustCompile(`^add\s+(.+)$`)
	modifyPattern = regexp.MustCompile(`^(?:change|make|set)\s+(.+?)\s+to\s+(\d+)$`)
	removePattern = regexp.MustCompile(`^(?:remove|delete|drop)\s+(?:(\d+)\s+)?(.+)$`)
)

// Interpret implements Interpreter.
func (RuleInterpreter) Interpret(_ context.Context, req Request) (Reply, error) {
	msg := strings.ToLower(strings.TrimSpace(req.Message))
	msg = strings.TrimRight(msg, ".!?")

	switch msg {
	case "done", "confirm", "place order", "checkout", "that's all", "thats all":
		return Reply{Text: "Placing your order now.", Actions: []Action{FinalizeOrder{}}}, nil
	case "clear", "clear order", "start over":
		return Reply{Text: "I've cleared your order.", Actions: []Action{ClearOrder{}}}, nil
	case "menu", "list", "what do you have":
		var names []string
		for _, it := range req.Inventory {
			if it.Quantity > 0 {
				names = append(names, it.Name)
			}
		}
		return Reply{Text: "We have: " + strings.Join(names, ", ") + "."}, nil
	}

	if rest, ok := strings.CutPrefix(msg, "note "); ok {
		return Reply{Text: "Noted.", Actions: []Action{AddNote{Text: rest}}}, nil
	}
	if m := modifyPattern.FindStringSubmatch(msg); m != nil {
		n, _ := strconv.Atoi(m[2])
		return Reply{Text: "Updated.", Actions: []Action{ModifyItem{Name: m[1], NewQuantity: n}}}, nil
	}
	if m := removePattern.FindStringSubmatch(msg); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Reply{Text: "Removed.", Actions: []Action{RemoveItem{Name: m[2], Quantity: n}}}, nil
	}
	if m := addPattern.FindStringSubmatch(msg); m != nil {
		n, _ := strconv.Atoi(m[1])
		return Reply{Text: "Added.", Actions: []Action{AddItem{Name: m[2], Quantity: n}}}, nil
	}
	if m := addOnePattern.FindStringSubmatch(msg); m != nil {
		return Reply{Text: "Added.", Actions: []Action{AddItem{Name: m[1], Quantity: 1}}}, nil
	}
	return Reply{Text: "Tell me what you'd like, for example \"add 2 milk\", or say \"done\" to place the order."}, nil
}
