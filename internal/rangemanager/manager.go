/*

This file contains the range manager: it owns each pool's position, decides
whether on-chain drift warrants a rebalance, and performs the rebalance as one
indivisible unit of work against the pool adapter.

One tick is one basis point of price in this pricing scheme, so the drift
threshold configured in bps converts to ticks one-to-one.

*/

package rangemanager

import (
	"fmt"
	"sort"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/omnipool-labs/alm/internal/keylock"
	"github.com/omnipool-labs/alm/internal/logger"
	"github.com/omnipool-labs/alm/internal/metrics"
	"github.com/omnipool-labs/alm/internal/pause"
	"github.com/omnipool-labs/alm/internal/pool"
	"github.com/omnipool-labs/alm/internal/ticks"
	"github.com/omnipool-labs/alm/internal/types"
)

// Manager owns all tracked positions, keyed by pool ID. Positions are mutated
// only through the rebalance algorithm, each pool under its own critical
// section.
type Manager struct {
	logger zerolog.Logger
	pool   pool.Adapter
	pause  *pause.Switch

	mu        sync.RWMutex
	positions map[types.PoolID]*types.Position
	cooldown  int64

	locks keylock.Map
}

// New creates a manager over the given pool adapter with the rebalance
// cooldown in blocks.
func New(adapter pool.Adapter, pauseSwitch *pause.Switch, cooldownBlocks int64) (*Manager, error) {
	if adapter == nil {
		return nil, types.Validationf("pool adapter cannot be nil")
	}
	if pauseSwitch == nil {
		return nil, types.Validationf("pause switch cannot be nil")
	}
	if cooldownBlocks < 0 {
		return nil, types.Validationf("cooldown must not be negative, got %d", cooldownBlocks)
	}
	return &Manager{
		logger:    logger.GetForComponent("range_manager"),
		pool:      adapter,
		pause:     pauseSwitch,
		positions: make(map[types.PoolID]*types.Position),
		cooldown:  cooldownBlocks,
	}, nil
}

// Track registers a position. One position exists per pool; re-tracking an
// existing pool is a validation error.
func (m *Manager) Track(p types.Position) error {
	if p.LowerTick >= p.UpperTick {
		return types.Validationf("lower tick %d must be below upper tick %d", p.LowerTick, p.UpperTick)
	}
	if p.RangeWidthTicks <= 0 {
		return types.Validationf("range width must be positive, got %d", p.RangeWidthTicks)
	}
	if p.RebalanceThresholdBps <= 0 {
		return types.Validationf("rebalance threshold must be positive, got %d", p.RebalanceThresholdBps)
	}
	if p.Liquidity.IsNil() {
		p.Liquidity = sdkmath.ZeroInt()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.positions[p.PoolID]; exists {
		return types.Validationf("position for pool %d already tracked", p.PoolID)
	}
	p.Active = true
	m.positions[p.PoolID] = &p
	metrics.PositionsTracked.Set(float64(len(m.positions)))

	m.logger.Info().
		Uint64("poolId", uint64(p.PoolID)).
		Int32("lowerTick", p.LowerTick).
		Int32("upperTick", p.UpperTick).
		Msg("Position tracked")
	return nil
}

// Deactivate takes a position out of rotation. Positions are never destroyed.
func (m *Manager) Deactivate(poolID types.PoolID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.positions[poolID]
	if !ok {
		return types.Validationf("unknown pool %d", poolID)
	}
	p.Active = false
	return nil
}

// Position returns a copy of the tracked position.
func (m *Manager) Position(poolID types.PoolID) (types.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.positions[poolID]
	if !ok {
		return types.Position{}, types.Validationf("unknown pool %d", poolID)
	}
	return *p, nil
}

// Positions returns copies of all tracked positions ordered by pool ID.
func (m *Manager) Positions() []types.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PoolID < out[j].PoolID })
	return out
}

// ShouldRebalance reports whether the position's drift warrants a rebalance:
// the cooldown must have elapsed AND the distance from currentTick to the
// range midpoint must strictly exceed the threshold. Exactly at the threshold
// does not trigger.
func ShouldRebalance(p types.Position, currentTick int32, currentHeight, cooldownBlocks int64) bool {
	if !p.Active {
		return false
	}
	if currentHeight-p.LastRebalanceHeight < cooldownBlocks {
		return false
	}
	drift := ticks.DriftTicks(currentTick, p.LowerTick, p.UpperTick)
	return int64(drift) > p.RebalanceThresholdBps
}

// ShouldRebalance applies the package-level decision to a tracked position.
func (m *Manager) ShouldRebalance(poolID types.PoolID, currentTick int32, currentHeight int64) (bool, error) {
	p, err := m.Position(poolID)
	if err != nil {
		return false, err
	}
	m.mu.RLock()
	cooldown := m.cooldown
	m.mu.RUnlock()
	return ShouldRebalance(p, currentTick, currentHeight, cooldown), nil
}

// ComputeNewRange centers the position's configured width on currentTick,
// aligned to the pool's tick spacing and clamped to the global bounds.
func ComputeNewRange(currentTick, rangeWidthTicks, tickSpacing int32) (int32, int32, error) {
	return ticks.ComputeRange(currentTick, rangeWidthTicks, tickSpacing)
}

// Rebalance re-centers the position on currentTick as one indivisible unit of
// work: withdraw everything from the old range, size new liquidity from the
// returned balances at the new range's mid price, deposit, and record the new
// range and height. A failure at any step aborts the whole operation and
// leaves the prior recorded state unchanged.
//
// Cooldown is enforced here as well as in ShouldRebalance so a direct caller
// cannot bypass it.
func (m *Manager) Rebalance(poolID types.PoolID, currentTick int32, currentHeight int64) error {
	if err := m.pause.Check(); err != nil {
		return err
	}

	unlock := m.locks.Lock(fmt.Sprintf("pool/%d", poolID))
	defer unlock()

	p, err := m.Position(poolID)
	if err != nil {
		return err
	}
	if !p.Active {
		return types.Validationf("position for pool %d is deactivated", poolID)
	}
	m.mu.RLock()
	cooldown := m.cooldown
	m.mu.RUnlock()
	if currentHeight-p.LastRebalanceHeight < cooldown {
		return types.ErrCooldownActive
	}

	spacing, err := m.pool.TickSpacing(poolID)
	if err != nil {
		return types.Externalf("tick spacing lookup failed: %v", err)
	}
	newLower, newUpper, err := ComputeNewRange(currentTick, p.RangeWidthTicks, spacing)
	if err != nil {
		return err
	}

	// Step 1: withdraw all liquidity at the old range.
	var amount0, amount1 sdkmath.Int
	if p.Liquidity.IsZero() {
		amount0, amount1, err = m.pool.ModifyLiquidity(poolID, p.LowerTick, p.UpperTick, sdkmath.ZeroInt())
	} else {
		amount0, amount1, err = m.pool.ModifyLiquidity(poolID, p.LowerTick, p.UpperTick, p.Liquidity.Neg())
	}
	if err != nil {
		metrics.RebalancesTotal.WithLabelValues("failed").Inc()
		return types.Externalf("withdrawal failed for pool %d: %v", poolID, err)
	}

	// Step 2: size liquidity for the new range. Zero is not an error; the
	// position simply holds no liquidity until the next rebalance.
	newLiquidity, err := ticks.LiquidityForAmounts(amount0, amount1, newLower, newUpper)
	if err != nil {
		m.restore(poolID, p, amount0, amount1)
		metrics.RebalancesTotal.WithLabelValues("failed").Inc()
		return err
	}

	// Step 3: deposit at the new range.
	if !newLiquidity.IsZero() {
		if _, _, err := m.pool.ModifyLiquidity(poolID, newLower, newUpper, newLiquidity); err != nil {
			m.restore(poolID, p, amount0, amount1)
			metrics.RebalancesTotal.WithLabelValues("failed").Inc()
			return types.Externalf("deposit failed for pool %d: %v", poolID, err)
		}
	}

	// Step 4: record the new range. Only now does the stored position change.
	m.mu.Lock()
	stored := m.positions[poolID]
	stored.LowerTick = newLower
	stored.UpperTick = newUpper
	stored.Liquidity = newLiquidity
	stored.LastRebalanceHeight = currentHeight
	m.mu.Unlock()

	metrics.RebalancesTotal.WithLabelValues("ok").Inc()
	m.logger.Info().
		Uint64("poolId", uint64(poolID)).
		Int32("newLower", newLower).
		Int32("newUpper", newUpper).
		Str("liquidity", newLiquidity.String()).
		Int64("height", currentHeight).
		Msg("Position rebalanced")
	return nil
}

// restore redeposits withdrawn balances at the old range after a failed step,
// so an aborted rebalance leaves no funds stranded outside the pool. Best
// effort: a restore failure is logged, the recorded position stays on its
// prior range either way.
func (m *Manager) restore(poolID types.PoolID, prior types.Position, amount0, amount1 sdkmath.Int) {
	if prior.Liquidity.IsZero() {
		return
	}
	if _, _, err := m.pool.ModifyLiquidity(poolID, prior.LowerTick, prior.UpperTick, prior.Liquidity); err != nil {
		m.logger.Error().Err(err).
			Uint64("poolId", uint64(poolID)).
			Str("amount0", amount0.String()).
			Str("amount1", amount1.String()).
			Msg("Failed to restore prior range after aborted rebalance")
	}
}
