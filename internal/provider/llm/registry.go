package llm

import (
	"net/http"
	"sync"
	"time"

	"github.com/af-corp/intentd/internal/config"
)

// Registry holds language-model adapters by provider name.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

func (r *Registry) Register(name string, adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[name] = adapter
}

func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Replace swaps the whole adapter set, used on providers.yaml reload.
func (r *Registry) Replace(other *Registry) {
	other.mu.RLock()
	next := make(map[string]Adapter, len(other.adapters))
	for k, v := range other.adapters {
		next[k] = v
	}
	other.mu.RUnlock()

	r.mu.Lock()
	r.adapters = next
	r.mu.Unlock()
}

// BuildFromConfig builds adapters from the providers config.
func BuildFromConfig(provCfg *config.ProvidersConfig) *Registry {
	registry := NewRegistry()
	for name, cfg := range provCfg.Providers {
		client := &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        cfg.MaxConcurrent,
				MaxIdleConnsPerHost: cfg.MaxConcurrent,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		}

		switch cfg.Type {
		case "anthropic":
			registry.Register(name, NewAnthropicAdapter(name, cfg, client))
		default:
			// openai, ollama and unknown types speak the OpenAI-compatible API
			registry.Register(name, NewOpenAIAdapter(name, cfg, client))
		}
	}
	return registry
}
