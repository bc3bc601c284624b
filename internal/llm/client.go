// Package llm provides completion clients for the language models that
// interpret customer messages.
package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/capitalize-ai/ordering-assistant/pkg/metrics"
)

// ErrEmptyCompletion is returned when a provider answers without text.
var ErrEmptyCompletion = errors.New("llm: empty completion")

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model string
	// System carries standing instructions, sent separately from the chat.
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
	// JSON asks the provider to constrain output to a JSON object where it
	// supports that.
	JSON bool
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// DefaultModel is used when a request names no model.
	DefaultModel() string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Config selects and configures a provider.
type Config struct {
	Provider Provider
	APIKey   string
	// BaseURL overrides the provider endpoint, for proxies and tests.
	BaseURL string
	// Timeout bounds each completion. Zero means 30s.
	Timeout time.Duration
}

// NewClient creates a client for cfg.Provider. Calls made through the
// returned client are bounded by cfg.Timeout and recorded in the LLM metrics.
func NewClient(cfg Config) (Client, error) {
	var (
		c   Client
		err error
	)
	switch cfg.Provider {
	case ProviderAnthropic, "":
		c, err = NewAnthropicClient(cfg.APIKey, cfg.BaseURL)
	case ProviderOpenAI:
		c, err = NewOpenAIClient(cfg.APIKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &instrumented{Client: c, timeout: timeout}, nil
}

type instrumented struct {
	Client
	timeout time.Duration
}

func (i *instrumented) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	start := time.Now()
	resp, err := i.Client.Complete(ctx, req)
	if err != nil {
		model := req.Model
		if model == "" {
			model = i.DefaultModel()
		}
		metrics.RecordLLMCall(i.Name(), model, "error", time.Since(start).Seconds(), 0, 0)
		return nil, err
	}
	metrics.RecordLLMCall(i.Name(), resp.Model, "success", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)
	return resp, nil
}
