package pool

import (
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/omnipool-labs/alm/internal/ticks"
	"github.com/omnipool-labs/alm/internal/types"
)

// SimPool is an in-memory pool adapter used in simulation mode and in tests.
// It models one deployed range per pool and prices token amounts with the same
// mid-range assumption the liquidity sizing uses.
type SimPool struct {
	mu     sync.RWMutex
	height int64
	pools  map[types.PoolID]*simPoolState
}

type simPoolState struct {
	tick      int32
	spacing   int32
	lower     int32
	upper     int32
	liquidity sdkmath.Int
	// Token balances held outside the deployed range, left over from a
	// withdrawal that could not be fully redeployed.
	idle0, idle1 sdkmath.Int
	priceUSD0    float64 // USD price of one unit of token0
	priceUSD1    float64
}

// NewSimPool creates an empty simulated pool set at height 1.
func NewSimPool() *SimPool {
	return &SimPool{
		height: 1,
		pools:  make(map[types.PoolID]*simPoolState),
	}
}

// AddPool registers a pool with its tick state and token USD prices.
func (s *SimPool) AddPool(id types.PoolID, tick, spacing int32, priceUSD0, priceUSD1 float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[id] = &simPoolState{
		tick:      tick,
		spacing:   spacing,
		liquidity: sdkmath.ZeroInt(),
		idle0:     sdkmath.ZeroInt(),
		idle1:     sdkmath.ZeroInt(),
		priceUSD0: priceUSD0,
		priceUSD1: priceUSD1,
	}
}

// SetTick moves the pool's current tick, simulating a price change.
func (s *SimPool) SetTick(id types.PoolID, tick int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pools[id]; ok {
		p.tick = tick
	}
}

// AdvanceHeight moves the simulated chain forward by n blocks.
func (s *SimPool) AdvanceHeight(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.height += n
}

// Fund seeds idle token balances for a pool, representing capital waiting to be
// deployed on the next rebalance.
func (s *SimPool) Fund(id types.PoolID, amount0, amount1 sdkmath.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pools[id]; ok {
		p.idle0 = p.idle0.Add(amount0)
		p.idle1 = p.idle1.Add(amount1)
	}
}

func (s *SimPool) CurrentTick(poolID types.PoolID) (int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[poolID]
	if !ok {
		return 0, types.Validationf("unknown pool %d", poolID)
	}
	return p.tick, nil
}

func (s *SimPool) TickSpacing(poolID types.PoolID) (int32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[poolID]
	if !ok {
		return 0, types.Validationf("unknown pool %d", poolID)
	}
	return p.spacing, nil
}

func (s *SimPool) CurrentHeight() (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.height, nil
}

func (s *SimPool) ModifyLiquidity(poolID types.PoolID, lowerTick, upperTick int32, liquidityDelta sdkmath.Int) (sdkmath.Int, sdkmath.Int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pools[poolID]
	if !ok {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), types.Validationf("unknown pool %d", poolID)
	}
	if liquidityDelta.IsNil() {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), nil
	}

	if liquidityDelta.IsZero() || liquidityDelta.IsNegative() {
		// Withdrawal: releases the proportional share of the deployed range
		// plus any idle balances. A zero burn still collects idle funds, which
		// is how a rebalance of an empty position picks up waiting capital.
		burn := liquidityDelta.Neg()
		if burn.GT(p.liquidity) {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), types.Validationf("burn %s exceeds deployed liquidity %s", burn, p.liquidity)
		}
		a0, a1, err := ticks.AmountsForLiquidity(burn, p.lower, p.upper)
		if err != nil {
			return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
		}
		p.liquidity = p.liquidity.Sub(burn)
		a0 = a0.Add(p.idle0)
		a1 = a1.Add(p.idle1)
		p.idle0 = sdkmath.ZeroInt()
		p.idle1 = sdkmath.ZeroInt()
		return a0, a1, nil
	}

	// Deposit: the new range replaces the old one.
	a0, a1, err := ticks.AmountsForLiquidity(liquidityDelta, lowerTick, upperTick)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	p.lower = lowerTick
	p.upper = upperTick
	p.liquidity = p.liquidity.Add(liquidityDelta)
	return a0, a1, nil
}

func (s *SimPool) PositionValueUSD(poolID types.PoolID) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[poolID]
	if !ok {
		return 0, types.Validationf("unknown pool %d", poolID)
	}

	total := 0.0
	if !p.liquidity.IsZero() {
		a0, a1, err := ticks.AmountsForLiquidity(p.liquidity, p.lower, p.upper)
		if err != nil {
			return 0, err
		}
		total += float64(a0.Int64())*p.priceUSD0 + float64(a1.Int64())*p.priceUSD1
	}
	total += float64(p.idle0.Int64())*p.priceUSD0 + float64(p.idle1.Int64())*p.priceUSD1
	return total, nil
}
