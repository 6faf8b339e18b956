// LLM provider router.
// Router selects a ChatModel at request time and is itself a ChatModel, so
// callers depend on the interface and never on a vendor.
package llm

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"sync"
)

// Router selects a ChatModel for each request.
type Router struct {
	mu              sync.RWMutex
	providers       map[string]ChatModel
	defaultProvider string
}

// NewRouter creates a Router with an initial set of providers and a default key.
func NewRouter(providers map[string]ChatModel, defaultProvider string) *Router {
	ps := make(map[string]ChatModel, len(providers))
	for k, v := range providers {
		ps[k] = v
	}
	return &Router{providers: ps, defaultProvider: defaultProvider}
}

// NewRouterFromOptions registers the provider named by o.Provider and makes
// it the default.
func NewRouterFromOptions(o Options) (*Router, error) {
	var model ChatModel
	switch o.Provider {
	case providerOllama, "":
		model = NewOllamaProvider(o.BaseURL, o.Model).WithDefaults(o.Temperature, o.MaxTokens)
		o.Provider = providerOllama
	case providerOpenAI:
		model = NewOpenAIProvider(o)
	case providerAnthropic:
		model = NewAnthropicProvider(o)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", o.Provider)
	}
	return NewRouter(map[string]ChatModel{o.Provider: model}, o.Provider), nil
}

// Register adds (or replaces) a provider under the given key.
func (r *Router) Register(key string, p ChatModel) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[key] = p
}

// Route returns the provider for the current request.
// Returns an error if the default provider is not registered.
func (r *Router) Route(_ context.Context) (ChatModel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[r.defaultProvider]
	if !ok {
		return nil, fmt.Errorf("llm router: provider %q not registered (available: %v)", r.defaultProvider, r.keys())
	}
	return p, nil
}

// StreamStep routes the step to the selected provider.
func (r *Router) StreamStep(ctx context.Context, req StepRequest) iter.Seq2[StepEvent, error] {
	p, err := r.Route(ctx)
	if err != nil {
		return func(yield func(StepEvent, error) bool) {
			yield(StepEvent{}, fmt.Errorf("%w: %w", ErrModelUnavailable, err))
		}
	}
	return p.StreamStep(ctx, req)
}

// ModelInfo describes the default provider, or only names it when missing.
func (r *Router) ModelInfo() ModelMeta {
	p, err := r.Route(context.Background())
	if err != nil {
		return ModelMeta{Provider: r.defaultProvider}
	}
	return p.ModelInfo()
}

// HealthCheck checks the default provider.
func (r *Router) HealthCheck(ctx context.Context) error {
	p, err := r.Route(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}
	return p.HealthCheck(ctx)
}

// keys returns the registered provider names (for error messages).
func (r *Router) keys() []string {
	out := make([]string, 0, len(r.providers))
	for k := range r.providers {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
