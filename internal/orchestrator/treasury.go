package orchestrator

import (
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/omnipool-labs/alm/internal/types"
)

// Treasury is the funds boundary the orchestrator debits escrow from and
// credits refunds to. Implementations must be atomic per call: a failed debit
// moves nothing.
type Treasury interface {
	// Debit removes amounts from the holder's balance into orchestrator escrow.
	Debit(holder string, pair types.TokenPairID, amount0, amount1 sdkmath.Int) error

	// Credit returns amounts to the holder's balance.
	Credit(holder string, pair types.TokenPairID, amount0, amount1 sdkmath.Int) error
}

// MemoryTreasury is an in-memory Treasury used in simulation mode and tests.
type MemoryTreasury struct {
	mu       sync.Mutex
	balances map[string]map[types.TokenPairID]balance
}

type balance struct {
	amount0 sdkmath.Int
	amount1 sdkmath.Int
}

// NewMemoryTreasury creates an empty treasury.
func NewMemoryTreasury() *MemoryTreasury {
	return &MemoryTreasury{balances: make(map[string]map[types.TokenPairID]balance)}
}

// Fund seeds a holder's balance.
func (t *MemoryTreasury) Fund(holder string, pair types.TokenPairID, amount0, amount1 sdkmath.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.get(holder, pair)
	b.amount0 = b.amount0.Add(amount0)
	b.amount1 = b.amount1.Add(amount1)
	t.set(holder, pair, b)
}

// Balance returns the holder's current balance for the pair.
func (t *MemoryTreasury) Balance(holder string, pair types.TokenPairID) (amount0, amount1 sdkmath.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.get(holder, pair)
	return b.amount0, b.amount1
}

func (t *MemoryTreasury) Debit(holder string, pair types.TokenPairID, amount0, amount1 sdkmath.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.get(holder, pair)
	if b.amount0.LT(amount0) || b.amount1.LT(amount1) {
		return types.Validationf("insufficient balance for %s on pair %s", holder, pair)
	}
	b.amount0 = b.amount0.Sub(amount0)
	b.amount1 = b.amount1.Sub(amount1)
	t.set(holder, pair, b)
	return nil
}

func (t *MemoryTreasury) Credit(holder string, pair types.TokenPairID, amount0, amount1 sdkmath.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.get(holder, pair)
	b.amount0 = b.amount0.Add(amount0)
	b.amount1 = b.amount1.Add(amount1)
	t.set(holder, pair, b)
	return nil
}

func (t *MemoryTreasury) get(holder string, pair types.TokenPairID) balance {
	byPair, ok := t.balances[holder]
	if !ok {
		return balance{amount0: sdkmath.ZeroInt(), amount1: sdkmath.ZeroInt()}
	}
	b, ok := byPair[pair]
	if !ok {
		return balance{amount0: sdkmath.ZeroInt(), amount1: sdkmath.ZeroInt()}
	}
	return b
}

func (t *MemoryTreasury) set(holder string, pair types.TokenPairID, b balance) {
	byPair, ok := t.balances[holder]
	if !ok {
		byPair = make(map[types.TokenPairID]balance)
		t.balances[holder] = byPair
	}
	byPair[pair] = b
}
