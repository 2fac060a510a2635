// Package llm provides a unified client for multiple language-model
// providers (OpenAI, Anthropic, Google) behind the ports.LLMClient
// interface. Cross-cutting concerns such as retries with backoff, request
// timeouts, rate limiting, metrics, and tracing are composed as middleware
// around a minimal provider core, so the generation and judging code never
// depends on which backend serves a request.
package llm

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/huihuang/mdaqa/internal/ports"
)

// CoreLLM is the minimal surface a provider must implement. Middleware wraps
// any conforming implementation.
type CoreLLM interface {
	// DoRequest sends prompt to the backend and returns the response text
	// together with input and output token counts.
	DoRequest(ctx context.Context, prompt string, opts map[string]any) (response string, tokensIn, tokensOut int, err error)

	// GetModel returns the configured model name.
	GetModel() string

	// SetModel switches the model used for subsequent requests.
	SetModel(model string)
}

// Middleware wraps a CoreLLM to add behavior around requests.
type Middleware func(CoreLLM) CoreLLM

// ClientConfig holds the settings needed to construct a provider client.
type ClientConfig struct {
	// APIKey authenticates requests to the provider.
	APIKey string

	// Model names the model to use for requests.
	Model string

	// BaseURL overrides the provider's default endpoint when non-empty.
	BaseURL string

	// Timeout bounds individual requests; zero means no client-side bound.
	Timeout time.Duration

	// Middleware is applied outermost-first around the provider core.
	Middleware []Middleware
}

// Client adapts a middleware-wrapped CoreLLM to ports.LLMClient.
type Client struct {
	core    CoreLLM
	counter *TokenCounter
}

var _ ports.LLMClient = (*Client)(nil)

// NewClient builds a client for the named provider type with the middleware
// chain from config applied.
func NewClient(providerType string, config ClientConfig) (*Client, error) {
	if config.APIKey == "" {
		return nil, ErrEmptyAPIKey
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	factoriesMu.RLock()
	factory, ok := providerFactories[providerType]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider: %s", providerType)
	}

	core, err := factory(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", providerType, err)
	}

	// Apply in reverse so the first configured middleware is outermost.
	for i := len(config.Middleware) - 1; i >= 0; i-- {
		core = config.Middleware[i](core)
	}

	return &Client{core: core, counter: NewTokenCounter()}, nil
}

// Complete sends a prompt and returns the response text, discarding usage.
func (c *Client) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	response, _, _, err := c.core.DoRequest(ctx, prompt, options)
	return response, err
}

// CompleteWithUsage sends a prompt and additionally returns token usage.
func (c *Client) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	return c.core.DoRequest(ctx, prompt, options)
}

// EstimateTokens approximates the token count for text.
func (c *Client) EstimateTokens(text string) (int, error) {
	return c.counter.EstimateTokens(text), nil
}

// GetModel returns the configured model name.
func (c *Client) GetModel() string { return c.core.GetModel() }

// ProviderFactory constructs a provider core from configuration.
type ProviderFactory func(ClientConfig) (CoreLLM, error)

var (
	factoriesMu       sync.RWMutex
	providerFactories = map[string]ProviderFactory{}
)

// RegisterProviderFactory makes a provider type available to NewClient.
// Providers in this package register themselves from init.
func RegisterProviderFactory(providerType string, factory ProviderFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	providerFactories[providerType] = factory
}

// BaseProvider supplies thread-safe model bookkeeping shared by providers.
type BaseProvider struct {
	mu    sync.RWMutex
	model string
}

// GetModel returns the current model name.
func (b *BaseProvider) GetModel() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.model
}

// SetModel updates the model used for subsequent requests.
func (b *BaseProvider) SetModel(model string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.model = model
}

// TokenCounter estimates token counts when the provider response does not
// report exact usage.
type TokenCounter struct {
	// CharactersPerToken is the assumed average; 4 is a reasonable
	// approximation for English text.
	CharactersPerToken float64
}

// NewTokenCounter returns a counter with the default ratio.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{CharactersPerToken: 4.0}
}

// EstimateTokens approximates the token count of text.
func (tc *TokenCounter) EstimateTokens(text string) int {
	if len(text) == 0 {
		return 0
	}
	return int(float64(len(text)) / tc.CharactersPerToken)
}

// GetTokenCount prefers the exact count reported by the API and falls back
// to estimation when it is missing.
func (tc *TokenCounter) GetTokenCount(actual int, text string) int {
	if actual > 0 {
		return actual
	}
	return tc.EstimateTokens(text)
}
