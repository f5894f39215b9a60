package model

import (
	"fmt"

	"github.com/convoflow/convoflow/core"
)

// Config holds the invocation parameters for one registered backend.
// Immutable after registry construction.
type Config struct {
	Name            string  `json:"name"`
	Provider        string  `json:"provider"` // "openai" (default) or "anthropic"
	APIKey          string  `json:"-"`
	BaseURL         string  `json:"base_url,omitempty"`
	Temperature     float64 `json:"temperature,omitempty"`
	TopP            float64 `json:"top_p,omitempty"`
	MaxTokens       int64   `json:"max_tokens,omitempty"`
	ReasoningEffort string  `json:"reasoning_effort,omitempty"` // "minimal", "low", "medium", "high"
}

// Factory constructs a Model client from a Config. Supplied at registry
// construction so this package stays free of vendor SDK imports.
type Factory func(cfg Config) (Model, error)

// Entry pairs a config with its pre-initialized default client. Default
// clients are reused across calls for their connection/parameter caching;
// override requests construct fresh instances instead of mutating them.
type Entry struct {
	Config Config
	Model  Model
}

// Registry is the static ordered catalog of available model backends. The
// order of the configs passed to NewRegistry defines the circular fallback
// order and never changes afterwards.
type Registry struct {
	factory Factory
	entries []Entry
	byName  map[string]int
}

// NewRegistry pre-initializes one default client per config. Duplicate names
// are rejected.
func NewRegistry(factory Factory, configs []Config) (*Registry, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("registry requires at least one model config")
	}
	r := &Registry{factory: factory, entries: make([]Entry, 0, len(configs)), byName: make(map[string]int, len(configs))}
	for _, cfg := range configs {
		if _, exists := r.byName[cfg.Name]; exists {
			return nil, fmt.Errorf("duplicate model name %q in registry", cfg.Name)
		}
		m, err := factory(cfg)
		if err != nil {
			return nil, fmt.Errorf("initializing model %q: %w", cfg.Name, err)
		}
		r.byName[cfg.Name] = len(r.entries)
		r.entries = append(r.entries, Entry{Config: cfg, Model: m})
	}
	return r, nil
}

// Get returns a model by name. With nil overrides the shared default client
// is returned; with overrides a fresh client is constructed from the merged
// config so the default instance is never mutated. An unknown name fails
// with *core.UnknownModelError enumerating all registered names.
func (r *Registry) Get(name string, overrides *Config) (Model, error) {
	idx, ok := r.byName[name]
	if !ok {
		return nil, &core.UnknownModelError{Name: name, Available: r.Names()}
	}
	if overrides == nil {
		return r.entries[idx].Model, nil
	}
	cfg := mergeConfig(r.entries[idx].Config, *overrides)
	return r.factory(cfg)
}

// Names returns all registered model names in fallback order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.Config.Name
	}
	return names
}

// Index returns the position of a model name in the fallback order.
func (r *Registry) Index(name string) (int, bool) {
	idx, ok := r.byName[name]
	return idx, ok
}

// At returns the entry at the given index reduced modulo the registry size,
// so any integer maps to a valid entry.
func (r *Registry) At(i int) Entry {
	n := len(r.entries)
	return r.entries[((i%n)+n)%n]
}

// Len returns the number of registered models.
func (r *Registry) Len() int { return len(r.entries) }

// mergeConfig overlays non-zero override fields on a base config. The name
// and provider always come from the base entry.
func mergeConfig(base, overrides Config) Config {
	cfg := base
	if overrides.APIKey != "" {
		cfg.APIKey = overrides.APIKey
	}
	if overrides.BaseURL != "" {
		cfg.BaseURL = overrides.BaseURL
	}
	if overrides.Temperature != 0 {
		cfg.Temperature = overrides.Temperature
	}
	if overrides.TopP != 0 {
		cfg.TopP = overrides.TopP
	}
	if overrides.MaxTokens != 0 {
		cfg.MaxTokens = overrides.MaxTokens
	}
	if overrides.ReasoningEffort != "" {
		cfg.ReasoningEffort = overrides.ReasoningEffort
	}
	return cfg
}

// DefaultConfigs returns the built-in model catalog in fallback order. The
// reasoning models carry per-tier effort settings; the gpt-4o family uses
// sampling parameters instead.
func DefaultConfigs(apiKey string, maxTokens int64) []Config {
	return []Config{
		{Name: "gpt-5-mini", Provider: "openai", APIKey: apiKey, MaxTokens: maxTokens, ReasoningEffort: "low"},
		{Name: "gpt-5", Provider: "openai", APIKey: apiKey, MaxTokens: maxTokens, ReasoningEffort: "medium"},
		{Name: "gpt-5-nano", Provider: "openai", APIKey: apiKey, MaxTokens: maxTokens, ReasoningEffort: "minimal"},
		{Name: "gpt-4o", Provider: "openai", APIKey: apiKey, MaxTokens: maxTokens, Temperature: 0.2, TopP: 0.95},
		{Name: "gpt-4o-mini", Provider: "openai", APIKey: apiKey, MaxTokens: maxTokens, Temperature: 0.2, TopP: 0.9},
	}
}
