package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Registry routes chat requests to the provider that serves the requested
// model. Models are matched by id prefix: "claude-*" goes to Anthropic,
// everything else to OpenAI by default.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
	prefixes  map[string]string // model prefix -> provider name
	fallback  string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]Provider),
		prefixes:  make(map[string]string),
	}
}

// Register adds a provider and the model prefixes it serves. The first
// registered provider becomes the fallback for unmatched models.
func (r *Registry) Register(p Provider, modelPrefixes ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
	for _, prefix := range modelPrefixes {
		r.prefixes[prefix] = p.Name()
	}
	if r.fallback == "" {
		r.fallback = p.Name()
	}
}

// ProviderFor resolves the provider serving the given model id.
func (r *Registry) ProviderFor(model string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for prefix, name := range r.prefixes {
		if strings.HasPrefix(model, prefix) {
			if p, ok := r.providers[name]; ok {
				return p, nil
			}
		}
	}
	if p, ok := r.providers[r.fallback]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: no provider registered for model %q", ErrProvider, model)
}

// Chat dispatches the request to the provider serving req.Model.
func (r *Registry) Chat(ctx context.Context, req *Request) (*Response, error) {
	p, err := r.ProviderFor(req.Model)
	if err != nil {
		return nil, err
	}
	return p.Chat(ctx, req)
}

// IsOpusModel reports whether the model id is a Claude Opus variant, which
// is gated behind premium access and a per-day allowance.
func IsOpusModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "opus")
}
