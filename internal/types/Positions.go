/*

This file contains the types for concentrated-liquidity positions which hold all the
state needed for range-drift detection and rebalancing.

*/

package types

import (
	sdkmath "cosmossdk.io/math"
)

type PoolID uint64

// Position is the active liquidity range the manager maintains for one pool.
// One Position exists per (chain, pool) pair; it is never destroyed, only
// deactivated.
type Position struct {
	PoolID      PoolID      `json:"pool_id"`
	ChainID     ChainID     `json:"chain_id"`
	TokenPairID TokenPairID `json:"token_pair_id"`

	LowerTick int32       `json:"lower_tick"`
	UpperTick int32       `json:"upper_tick"`
	Liquidity sdkmath.Int `json:"liquidity"` // Liquidity currently deployed in [LowerTick, UpperTick)

	RebalanceThresholdBps int64 `json:"rebalance_threshold_bps"` // Drift from range midpoint that triggers a rebalance
	RangeWidthTicks       int32 `json:"range_width_ticks"`       // Full width of the target range
	LastRebalanceHeight   int64 `json:"last_rebalance_height"`

	CrossChainEnabled bool `json:"cross_chain_enabled"` // Whether this position may be migrated to another chain
	Active            bool `json:"active"`
}

// Midpoint returns the center tick of the position's current range.
func (p Position) Midpoint() int32 {
	return p.LowerTick + (p.UpperTick-p.LowerTick)/2
}
