/*

This file contains the yield registry: the latest yield/TVL/gas observation per
(chain, token pair), fed by an authorized oracle updater and queried for the
best-chain comparison that drives migration decisions.

*/

package yieldregistry

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/omnipool-labs/alm/internal/logger"
	"github.com/omnipool-labs/alm/internal/metrics"
	"github.com/omnipool-labs/alm/internal/types"
)

// Registry stores one YieldRecord per (chain, pair), last write wins.
type Registry struct {
	logger zerolog.Logger

	mu                sync.RWMutex
	records           map[types.ChainID]map[types.TokenPairID]types.YieldRecord
	authorizedUpdater string
}

// NewRegistry creates a registry accepting updates only from authorizedUpdater.
func NewRegistry(authorizedUpdater string) *Registry {
	return &Registry{
		logger:            logger.GetForComponent("yield_registry"),
		records:           make(map[types.ChainID]map[types.TokenPairID]types.YieldRecord),
		authorizedUpdater: authorizedUpdater,
	}
}

// SetAuthorizedUpdater rotates the updater capability.
func (r *Registry) SetAuthorizedUpdater(updater string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.authorizedUpdater = updater
}

// Update replaces the record for (chainID, pair) unconditionally, timestamped
// now. Only the authorized updater may call it.
func (r *Registry) Update(caller string, chainID types.ChainID, pair types.TokenPairID, apyBps int64, tvlUSD, gasPrice float64, now time.Time) error {
	if apyBps < 0 {
		return types.Validationf("apy must not be negative, got %d", apyBps)
	}
	if tvlUSD < 0 || gasPrice < 0 {
		return types.Validationf("tvl and gas price must not be negative")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if caller != r.authorizedUpdater {
		return types.Validationf("caller %q is not the authorized yield updater", caller)
	}

	byPair, ok := r.records[chainID]
	if !ok {
		byPair = make(map[types.TokenPairID]types.YieldRecord)
		r.records[chainID] = byPair
	}
	byPair[pair] = types.YieldRecord{
		ChainID:     chainID,
		TokenPairID: pair,
		APYBps:      apyBps,
		TVLUSD:      tvlUSD,
		GasPrice:    gasPrice,
		ObservedAt:  now,
	}

	metrics.YieldUpdatesTotal.Inc()
	r.logger.Info().
		Uint64("chainId", uint64(chainID)).
		Str("pair", string(pair)).
		Int64("apyBps", apyBps).
		Float64("tvlUSD", tvlUSD).
		Float64("gasPrice", gasPrice).
		Msg("Yield updated")
	return nil
}

// Get returns the record for (chainID, pair) if one exists.
func (r *Registry) Get(chainID types.ChainID, pair types.TokenPairID) (types.YieldRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	byPair, ok := r.records[chainID]
	if !ok {
		return types.YieldRecord{}, false
	}
	rec, ok := byPair[pair]
	return rec, ok
}

// BestChain scans all known chains for the pair, discards records older than
// freshnessWindow, and selects the maximum APY. Equal APYs break on lower gas
// price, then lower chain ID, so the result is reproducible. When the best
// chain is excludingChain, or no record qualifies, the current chain comes back
// with a zero delta: no opportunity.
func (r *Registry) BestChain(pair types.TokenPairID, excludingChain types.ChainID, freshnessWindow time.Duration, now time.Time) (types.ChainID, int64) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		best  types.YieldRecord
		found bool
	)
	for chainID, byPair := range r.records {
		rec, ok := byPair[pair]
		if !ok || !rec.Fresh(freshnessWindow, now) {
			continue
		}
		if !found {
			best, found = rec, true
			continue
		}
		if rec.APYBps > best.APYBps ||
			(rec.APYBps == best.APYBps && rec.GasPrice < best.GasPrice) ||
			(rec.APYBps == best.APYBps && rec.GasPrice == best.GasPrice && chainID < best.ChainID) {
			best = rec
		}
	}

	if !found || best.ChainID == excludingChain {
		return excludingChain, 0
	}

	var currentAPY int64
	if byPair, ok := r.records[excludingChain]; ok {
		if rec, ok := byPair[pair]; ok && rec.Fresh(freshnessWindow, now) {
			currentAPY = rec.APYBps
		}
	}
	delta := best.APYBps - currentAPY
	if delta < 0 {
		delta = 0
	}
	return best.ChainID, delta
}

// Comparison returns every record known for the pair ordered by chain ID, with
// a staleness flag relative to the freshness window.
func (r *Registry) Comparison(pair types.TokenPairID, freshnessWindow time.Duration, now time.Time) []ComparisonEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ComparisonEntry, 0, len(r.records))
	for _, byPair := range r.records {
		rec, ok := byPair[pair]
		if !ok {
			continue
		}
		out = append(out, ComparisonEntry{
			Record: rec,
			Stale:  !rec.Fresh(freshnessWindow, now),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Record.ChainID < out[j].Record.ChainID })
	return out
}

// ComparisonEntry pairs a yield record with its staleness at query time.
type ComparisonEntry struct {
	Record types.YieldRecord `json:"record"`
	Stale  bool              `json:"stale"`
}
