/*

This file contains the dynamic registry of supported chains. Chains are added
and removed by an administrative capability; migration targets are always
resolved against the registry, never a fixed list.

*/

package chains

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/omnipool-labs/alm/internal/logger"
	"github.com/omnipool-labs/alm/internal/types"
)

// Registry holds the ChainLink configuration for every supported chain.
type Registry struct {
	logger zerolog.Logger

	mu    sync.RWMutex
	links map[types.ChainID]types.ChainLink
}

// NewRegistry creates an empty chain registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: logger.GetForComponent("chain_registry"),
		links:  make(map[types.ChainID]types.ChainLink),
	}
}

// Register adds or replaces a chain configuration.
func (r *Registry) Register(link types.ChainLink) error {
	if link.ChainID == 0 {
		return types.Validationf("chain id must be non-zero")
	}
	if link.BridgeEndpointRef == "" {
		return types.Validationf("bridge endpoint reference must not be empty")
	}
	if link.BaseGasUnits <= 0 {
		return types.Validationf("base gas units must be positive, got %f", link.BaseGasUnits)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[link.ChainID] = link

	r.logger.Info().
		Uint64("chainId", uint64(link.ChainID)).
		Str("bridgeEndpoint", link.BridgeEndpointRef).
		Bool("active", link.Active).
		Msg("Chain registered")
	return nil
}

// Deregister removes a chain. Removing an unknown chain is a validation error.
func (r *Registry) Deregister(id types.ChainID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.links[id]; !ok {
		return types.Validationf("unknown chain %d", id)
	}
	delete(r.links, id)
	r.logger.Info().Uint64("chainId", uint64(id)).Msg("Chain deregistered")
	return nil
}

// SetActive toggles a chain without losing its configuration.
func (r *Registry) SetActive(id types.ChainID, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	link, ok := r.links[id]
	if !ok {
		return types.Validationf("unknown chain %d", id)
	}
	link.Active = active
	r.links[id] = link
	return nil
}

// Get returns the configuration for a chain.
func (r *Registry) Get(id types.ChainID) (types.ChainLink, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	link, ok := r.links[id]
	if !ok {
		return types.ChainLink{}, types.Validationf("unknown chain %d", id)
	}
	return link, nil
}

// List returns all known chains ordered by chain ID.
func (r *Registry) List() []types.ChainLink {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]types.ChainLink, 0, len(r.links))
	for _, link := range r.links {
		out = append(out, link)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChainID < out[j].ChainID })
	return out
}
