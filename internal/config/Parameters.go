/*

This file contains the default policy parameters for the manager.

These values are used if no active parameters are found in the database during
initialization. They are deliberately conservative: the decisions they gate
move real capital across chains.

*/

package config

import (
	"time"

	"github.com/omnipool-labs/alm/internal/types"
)

// DefaultPolicyParameters provides a baseline set of decision constants.
var DefaultPolicyParameters = types.PolicyParameters{
	CooldownBlocks: 100, // Do not rebalance the same position more than once per ~100 blocks.
	// Rationale: every rebalance pays gas and crosses the spread twice. A price
	// excursion that reverts within the cooldown costs nothing.

	YieldHorizonDays: 30, // Project the APY delta linearly over 30 days.
	// Rationale: yields mean-revert; anything beyond a month of linear
	// extrapolation is fiction. The horizon is policy, not mathematics.

	ProfitBufferBps: 1000, // Require projected yield to beat cost by 10%.
	// Rationale: bridge fees and gas estimates are quotes, not guarantees, and
	// the oracle data behind the APY delta may already be minutes old.

	FreshnessWindow: 15 * time.Minute, // Exclude yield observations older than this.
	// Rationale: a stale record showing yesterday's best yield is exactly the
	// input that triggers an unprofitable migration.

	MinMigrationValueUSD: 1_000.0, // Do not migrate positions below this value.
	// Rationale: below this size the fixed bridging cost dominates any
	// realistic yield delta.

	MaxMigrationValueUSD: 5_000_000.0, // Cap the value a single migration carries.
	// Rationale: bounds the worst case of a bridge incident to one position's
	// ceiling rather than the whole book.
}
