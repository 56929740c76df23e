/*

This file contains the cross-chain migration record and its lifecycle states.

A migration is created once per attempt with a globally unique deterministic ID.
The lifecycle is Pending -> InProgress -> {Completed | Failed}; Cancelled is
reachable from Pending only. Terminal states are final and immutable.

*/

package types

import (
	"time"

	sdkmath "cosmossdk.io/math"
)

type MigrationStatus string

const (
	MigrationPending    MigrationStatus = "PENDING"     // Escrow taken, bridge not yet called
	MigrationInProgress MigrationStatus = "IN_PROGRESS" // Bridge call dispatched, awaiting callback
	MigrationCompleted  MigrationStatus = "COMPLETED"
	MigrationFailed     MigrationStatus = "FAILED"
	MigrationCancelled  MigrationStatus = "CANCELLED"
)

// Terminal reports whether the status admits no further transitions.
func (s MigrationStatus) Terminal() bool {
	switch s {
	case MigrationCompleted, MigrationFailed, MigrationCancelled:
		return true
	}
	return false
}

// Migration is one attempt to relocate a position's funds to another chain.
type Migration struct {
	ID          string      `json:"id"`
	Initiator   string      `json:"initiator"`
	FromChain   ChainID     `json:"from_chain"`
	ToChain     ChainID     `json:"to_chain"`
	TokenPairID TokenPairID `json:"token_pair_id"`

	Amount0 sdkmath.Int `json:"amount_0"`
	Amount1 sdkmath.Int `json:"amount_1"`

	CreatedAt time.Time       `json:"created_at"`
	Status    MigrationStatus `json:"status"`

	EstimatedCostNative float64 `json:"estimated_cost_native"` // Bridge fee + destination gas, in USD
	ExpectedYieldNative float64 `json:"expected_yield_native"` // Projected 30-day yield improvement, in USD
}

// FinalAmounts are reported by the destination-side callback when a migration
// completes; they may differ from the escrowed amounts by bridge fees.
type FinalAmounts struct {
	Amount0 sdkmath.Int `json:"amount_0"`
	Amount1 sdkmath.Int `json:"amount_1"`
}
