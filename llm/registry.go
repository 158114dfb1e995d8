package llm

import (
	"strings"
	"sync"

	"github.com/mnemo-ai/mnemo"
)

// ClientFactory creates a Client configured for a given model name.
type ClientFactory func(model string) Client

// ModelMatcher reports whether a model name belongs to a provider.
type ModelMatcher func(model string) bool

// RegistryEntry pairs a matcher with its factory.
type RegistryEntry struct {
	Name    string
	Match   ModelMatcher
	Factory ClientFactory
}

// Registry maps model names to providers. Entries are checked in
// registration order, so register more specific matchers first.
type Registry struct {
	mu      sync.RWMutex
	entries []RegistryEntry
	cache   map[string]Client
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{cache: make(map[string]Client)}
}

// Register adds a provider entry.
func (r *Registry) Register(entry RegistryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, entry)
}

// ClientForModel returns a client for the given model name. Clients are
// cached per model. Unknown model names are invalid input.
func (r *Registry) ClientForModel(model string) (Client, error) {
	r.mu.RLock()
	if client, ok := r.cache[model]; ok {
		r.mu.RUnlock()
		return client, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.cache[model]; ok {
		return client, nil
	}
	for _, entry := range r.entries {
		if entry.Match(model) {
			client := entry.Factory(model)
			r.cache[model] = client
			return client, nil
		}
	}
	return nil, mnemo.Errorf(mnemo.KindInvalidInput, "unknown model name %q", model)
}

// EmbeddingClientForModel returns a client for the model and verifies it
// can embed.
func (r *Registry) EmbeddingClientForModel(model string) (Client, error) {
	client, err := r.ClientForModel(model)
	if err != nil {
		return nil, err
	}
	if !client.SupportsEmbedding() {
		return nil, mnemo.Errorf(mnemo.KindInvalidInput,
			"provider %s cannot embed; model %q is not usable as the embedding model", client.Name(), model)
	}
	return client, nil
}

// PrefixMatcher matches model names with any of the given case-insensitive
// prefixes.
func PrefixMatcher(prefixes ...string) ModelMatcher {
	lowered := make([]string, len(prefixes))
	for i, p := range prefixes {
		lowered[i] = strings.ToLower(p)
	}
	return func(model string) bool {
		m := strings.ToLower(model)
		for _, p := range lowered {
			if strings.HasPrefix(m, p) {
				return true
			}
		}
		return false
	}
}
