package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/voxprint/pkg/provider/embedder"
	"github.com/MrWong99/voxprint/pkg/provider/vad"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	vad      map[string]func(VADConfig) (vad.Engine, error)
	embedder map[string]func(ModelConfig) (embedder.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vad:      make(map[string]func(VADConfig) (vad.Engine, error)),
		embedder: make(map[string]func(ModelConfig) (embedder.Provider, error)),
	}
}

// RegisterVAD registers a voice activity engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterVAD(name string, factory func(VADConfig) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterEmbedder registers a speaker embedder factory under name.
func (r *Registry) RegisterEmbedder(name string, factory func(ModelConfig) (embedder.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embedder[name] = factory
}

// CreateVAD instantiates a voice activity engine using the factory
// registered under cfg.Engine.
// Returns [ErrProviderNotRegistered] if no factory has been registered
// for that name.
func (r *Registry) CreateVAD(cfg VADConfig) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[cfg.Engine]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: vad/%q", ErrProviderNotRegistered, cfg.Engine)
	}
	return factory(cfg)
}

// CreateEmbedder instantiates a speaker embedder using the factory
// registered under cfg.Provider.
func (r *Registry) CreateEmbedder(cfg ModelConfig) (embedder.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embedder[cfg.Provider]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embedder/%q", ErrProviderNotRegistered, cfg.Provider)
	}
	return factory(cfg)
}
