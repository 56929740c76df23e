package types

import "time"

// PositionSnapshot is the per-position slice of a cycle snapshot.
type PositionSnapshot struct {
	PoolID      PoolID      `json:"pool_id"`
	ChainID     ChainID     `json:"chain_id"`
	TokenPairID TokenPairID `json:"token_pair_id"`
	LowerTick   int32       `json:"lower_tick"`
	UpperTick   int32       `json:"upper_tick"`
	Liquidity   string      `json:"liquidity"`
	Rebalanced  bool        `json:"rebalanced"`
}

// CycleSnapshot records what one keeper cycle observed and did. Persisted as an
// audit trail; decision state never depends on it.
type CycleSnapshot struct {
	SnapshotID      int64              `json:"snapshot_id,omitempty"`
	CycleNumber     int                `json:"cycle_number"`
	Timestamp       time.Time          `json:"timestamp"`
	Positions       []PositionSnapshot `json:"positions"`
	RebalancesDone  int                `json:"rebalances_done"`
	MigrationsBegun []string           `json:"migrations_begun"` // Migration IDs created this cycle
}
