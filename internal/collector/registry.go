package collector

import (
	"fmt"
	"sync"

	"github.com/agentoven/agentoven/control-plane/pkg/models"
	"github.com/rs/zerolog/log"
)

// Registry maps platform_type to its Adapter — "new platforms add an
// implementation, not new call sites" (spec.md §9), directly modeled on
// the teacher's internal/router.ModelRouter driver registry.
type Registry struct {
	mu       sync.RWMutex
	adapters map[models.PlatformType]Adapter
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[models.PlatformType]Adapter)}
}

// Register adds or replaces the adapter for a platform type.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.PlatformType()] = a
	log.Info().Str("platform_type", string(a.PlatformType())).Msg("platform collector registered")
}

// Get returns the adapter registered for platformType, or an error if
// none is registered.
func (r *Registry) Get(platformType models.PlatformType) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[platformType]
	if !ok {
		return nil, fmt.Errorf("no collector registered for platform_type %q", platformType)
	}
	return a, nil
}
