package pool

import (
	sdkmath "cosmossdk.io/math"

	"github.com/omnipool-labs/alm/internal/types"
)

// Adapter defines the interface to the underlying AMM pools. It abstracts away
// the pool mechanics (swap execution, fee accrual, tick math primitives),
// allowing for different implementations (live chain client, simulation).
type Adapter interface {
	// CurrentTick returns the pool's current price coordinate.
	CurrentTick(poolID types.PoolID) (int32, error)

	// TickSpacing returns the pool's tick alignment granularity.
	TickSpacing(poolID types.PoolID) (int32, error)

	// CurrentHeight returns the current block height of the chain the pools
	// live on, used for rebalance cooldown accounting.
	CurrentHeight() (int64, error)

	// ModifyLiquidity adds (positive delta) or removes (negative delta)
	// liquidity on the given range and returns the token amounts consumed or
	// released.
	ModifyLiquidity(poolID types.PoolID, lowerTick, upperTick int32, liquidityDelta sdkmath.Int) (amount0, amount1 sdkmath.Int, err error)

	// PositionValueUSD estimates the USD value of the liquidity currently
	// deployed in the pool.
	PositionValueUSD(poolID types.PoolID) (float64, error)
}
