package types

import "time"

// PolicyParameters are the tunable decision constants for the manager. They are
// global to the process; per-position range geometry lives on the Position
// itself. Loaded from the database at startup, falling back to
// config.DefaultPolicyParameters.
type PolicyParameters struct {
	// CooldownBlocks is the minimum number of blocks between rebalances of the
	// same position, regardless of drift.
	CooldownBlocks int64 `json:"cooldown_blocks"`

	// YieldHorizonDays is the horizon of the linear yield projection used by
	// the migration evaluator.
	YieldHorizonDays int64 `json:"yield_horizon_days"`

	// ProfitBufferBps inflates the estimated migration cost before comparing it
	// against the projected yield, guarding against oracle staleness and
	// estimation error.
	ProfitBufferBps int64 `json:"profit_buffer_bps"`

	// FreshnessWindow is the maximum age of a yield observation before it is
	// excluded from cross-chain comparisons.
	FreshnessWindow time.Duration `json:"freshness_window"`

	// MinMigrationValueUSD and MaxMigrationValueUSD bound the total value a
	// single migration may carry.
	MinMigrationValueUSD float64 `json:"min_migration_value_usd"`
	MaxMigrationValueUSD float64 `json:"max_migration_value_usd"`
}
