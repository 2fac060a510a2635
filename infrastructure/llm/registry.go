package llm

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/huihuang/mdaqa/internal/ports"
)

// ProviderSettings describes one provider available through a Registry.
type ProviderSettings struct {
	// Type names the provider implementation (openai, anthropic, google).
	Type string
	// EnvVar is the environment variable holding the API key.
	EnvVar string
	// DefaultModel is used when a spec omits the model.
	DefaultModel string
	// BaseURL overrides the provider's default endpoint.
	BaseURL string
}

// DefaultProviders holds the standard configurations for the supported
// backends. Applications can copy and override individual entries.
var DefaultProviders = map[string]ProviderSettings{
	"openai": {
		Type:         "openai",
		EnvVar:       "OPENAI_API_KEY",
		DefaultModel: OpenAIDefaultModel,
	},
	"anthropic": {
		Type:         "anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: AnthropicDefaultModel,
	},
	"google": {
		Type:         "google",
		EnvVar:       "GOOGLE_API_KEY",
		DefaultModel: GoogleDefaultModel,
	},
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	// Providers maps provider names to their settings.
	Providers map[string]ProviderSettings
	// DefaultTimeout applies to every created client.
	DefaultTimeout time.Duration
	// DefaultMiddleware is applied to every created client.
	DefaultMiddleware []Middleware
}

// Registry creates and caches clients addressed by "provider" or
// "provider/model" specs, reading API keys from the environment. It is safe
// for concurrent use.
type Registry struct {
	providers         map[string]ProviderSettings
	defaultMiddleware []Middleware
	defaultTimeout    time.Duration

	mu      sync.RWMutex
	clients map[string]ports.LLMClient
}

// NewRegistry builds a registry from config, falling back to
// DefaultProviders when no providers are given.
func NewRegistry(config RegistryConfig) *Registry {
	providers := config.Providers
	if len(providers) == 0 {
		providers = DefaultProviders
	}
	return &Registry{
		providers:         providers,
		defaultMiddleware: config.DefaultMiddleware,
		defaultTimeout:    config.DefaultTimeout,
		clients:           make(map[string]ports.LLMClient),
	}
}

// Client returns the client for a "provider" or "provider/model" spec,
// creating and caching it on first use.
func (r *Registry) Client(spec string) (ports.LLMClient, error) {
	if spec == "" {
		return nil, fmt.Errorf("provider specification cannot be empty")
	}

	provider, model := r.parseSpec(spec)
	key := provider + "/" + model

	r.mu.RLock()
	client, ok := r.clients[key]
	r.mu.RUnlock()
	if ok {
		return client, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	client, err := r.createClient(provider, model)
	if err != nil {
		return nil, err
	}
	r.clients[key] = client
	return client, nil
}

func (r *Registry) parseSpec(spec string) (provider, model string) {
	parts := strings.SplitN(spec, "/", 2)
	provider = parts[0]
	if len(parts) > 1 {
		model = parts[1]
	} else if settings, ok := r.providers[provider]; ok {
		model = settings.DefaultModel
	}
	return provider, model
}

func (r *Registry) createClient(provider, model string) (ports.LLMClient, error) {
	settings, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}

	apiKey := os.Getenv(settings.EnvVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set for provider %q", settings.EnvVar, provider)
	}

	return NewClient(settings.Type, ClientConfig{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    settings.BaseURL,
		Timeout:    r.defaultTimeout,
		Middleware: append([]Middleware{}, r.defaultMiddleware...),
	})
}
