// Package models builds chat models from provider config and streams their
// replies.
package models

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/coinchat/internal/config"
)

// ProviderEntry holds a lazily-initialized model instance.
type ProviderEntry struct {
	Name   string
	Config config.ProviderConfig
	model  model.ToolCallingChatModel
	once   sync.Once
	err    error
}

// Label is the display name of the provider.
func (e *ProviderEntry) Label() string {
	if e.Config.Label != "" {
		return e.Config.Label
	}
	return e.Name
}

// Registry manages named model providers with lazy initialization.
type Registry struct {
	mu          sync.RWMutex
	providers   map[string]*ProviderEntry
	defaultName string
	create      func(context.Context, config.ProviderConfig) (model.ToolCallingChatModel, error)
}

// NewRegistry creates a model registry from config.
func NewRegistry(cfg config.ModelsConfig) *Registry {
	r := &Registry{create: CreateModel}
	r.Update(cfg)
	return r
}

// Update replaces the provider set. Models are re-created on next use.
func (r *Registry) Update(cfg config.ModelsConfig) {
	providers := make(map[string]*ProviderEntry, len(cfg.Providers))
	for name, provCfg := range cfg.Providers {
		providers[name] = &ProviderEntry{Name: name, Config: provCfg}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = providers
	r.defaultName = cfg.Default
}

// Get returns the named model, initializing it lazily.
func (r *Registry) Get(ctx context.Context, name string) (model.ToolCallingChatModel, error) {
	r.mu.RLock()
	entry, ok := r.providers[name]
	create := r.create
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("model provider %q not found", name)
	}
	if entry.Config.Disabled {
		return nil, fmt.Errorf("model provider %q is disabled", name)
	}

	entry.once.Do(func() {
		entry.model, entry.err = create(ctx, entry.Config)
		if entry.err != nil {
			entry.err = fmt.Errorf("init model %q: %w", name, entry.err)
		}
	})

	return entry.model, entry.err
}

// Entry returns the named provider entry.
func (r *Registry) Entry(name string) (*ProviderEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.providers[name]
	return e, ok
}

// Default returns the default model.
func (r *Registry) Default(ctx context.Context) (model.ToolCallingChatModel, error) {
	name := r.DefaultName()
	if name == "" {
		return nil, fmt.Errorf("no default model configured")
	}
	return r.Get(ctx, name)
}

// DefaultName returns the name of the default provider.
func (r *Registry) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultName
}

// Names returns the provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// ListModels implements Lister over the configured providers. The default
// provider comes first, the rest in name order.
func (r *Registry) ListModels(context.Context) ([]Option, error) {
	names := r.Names()
	def := r.DefaultName()

	opts := make([]Option, 0, len(names))
	for _, name := range names {
		e, _ := r.Entry(name)
		opt := Option{Value: name, Label: e.Label(), Disabled: e.Config.Disabled}
		if name == def {
			opts = slices.Insert(opts, 0, opt)
			continue
		}
		opts = append(opts, opt)
	}
	return opts, nil
}
