/*

This file contains the keeper: the cycle loop that ties the decision components
together. Each cycle reads every tracked position's on-chain state, rebalances
drifting ranges, and opens profitable cross-chain migrations.

*/

package keeper

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omnipool-labs/alm/internal/evaluator"
	"github.com/omnipool-labs/alm/internal/logger"
	"github.com/omnipool-labs/alm/internal/metrics"
	"github.com/omnipool-labs/alm/internal/orchestrator"
	"github.com/omnipool-labs/alm/internal/pool"
	"github.com/omnipool-labs/alm/internal/rangemanager"
	"github.com/omnipool-labs/alm/internal/ticks"
	"github.com/omnipool-labs/alm/internal/types"
	"github.com/omnipool-labs/alm/internal/yieldregistry"
)

const (
	DEFAULT_POLICY_CONFIG_NAME    = "default"
	DEFAULT_POLICY_CONFIG_VERSION = 1
)

// SnapshotSaver persists cycle snapshots. Persistence is an audit trail only.
type SnapshotSaver interface {
	SaveCycleSnapshot(snapshot types.CycleSnapshot) (int64, error)
}

// Keeper drives the decision cycle for all managed positions.
type Keeper struct {
	logger zerolog.Logger

	ranges    *rangemanager.Manager
	pool      pool.Adapter
	registry  *yieldregistry.Registry
	evaluator *evaluator.Evaluator
	orch      *orchestrator.Orchestrator
	params    types.PolicyParameters
	snapshots SnapshotSaver

	// Initiator identity the keeper uses when opening migrations on behalf of
	// the positions it manages.
	initiator string

	// One open migration per pool. An entry stays until its migration
	// reaches a terminal state so a position is never escrowed twice.
	openMigrations map[types.PoolID]string

	cycleCount int
}

// Config holds the dependencies for creating a Keeper.
type Config struct {
	Ranges    *rangemanager.Manager
	Pool      pool.Adapter
	Registry  *yieldregistry.Registry
	Evaluator *evaluator.Evaluator
	Orch      *orchestrator.Orchestrator
	Params    types.PolicyParameters
	Snapshots SnapshotSaver // optional
	Initiator string
}

// New creates a keeper with dependency injection.
func New(cfg Config) (*Keeper, error) {
	if cfg.Ranges == nil {
		return nil, types.Validationf("range manager cannot be nil")
	}
	if cfg.Pool == nil {
		return nil, types.Validationf("pool adapter cannot be nil")
	}
	if cfg.Registry == nil {
		return nil, types.Validationf("yield registry cannot be nil")
	}
	if cfg.Evaluator == nil {
		return nil, types.Validationf("evaluator cannot be nil")
	}
	if cfg.Orch == nil {
		return nil, types.Validationf("orchestrator cannot be nil")
	}
	if cfg.Initiator == "" {
		return nil, types.Validationf("initiator identity cannot be empty")
	}
	return &Keeper{
		logger:    logger.GetForComponent("keeper"),
		ranges:    cfg.Ranges,
		pool:      cfg.Pool,
		registry:  cfg.Registry,
		evaluator: cfg.Evaluator,
		orch:      cfg.Orch,
		params:    cfg.Params,
		snapshots: cfg.Snapshots,
		initiator: cfg.Initiator,

		openMigrations: make(map[types.PoolID]string),
	}, nil
}

// RunLoop starts the main keeper loop with the specified interval.
func (k *Keeper) RunLoop(ctx context.Context, interval time.Duration) {
	k.logger.Info().Dur("interval", interval).Msg("Starting keeper main loop")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	k.cycleCount++
	k.RunCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			k.logger.Info().Msg("Keeper loop stopped due to context cancellation")
			return
		case <-ticker.C:
			k.cycleCount++
			k.RunCycle(ctx)
		}
	}
}

// RunCycle executes one complete decision cycle over all tracked positions.
func (k *Keeper) RunCycle(ctx context.Context) {
	cycleStart := time.Now()
	cycleID := uuid.New().String()
	cycleLogger := k.logger.With().Str("cycle_id", cycleID).Int("cycle", k.cycleCount).Logger()

	cycleLogger.Info().Msg("--- Starting keeper cycle ---")

	height, err := k.pool.CurrentHeight()
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Cycle aborted: failed to read current height")
		return
	}

	snapshot := types.CycleSnapshot{
		CycleNumber:     k.cycleCount,
		Timestamp:       cycleStart,
		MigrationsBegun: make([]string, 0),
	}

	for _, p := range k.ranges.Positions() {
		if ctx.Err() != nil {
			cycleLogger.Warn().Msg("Cycle interrupted by context cancellation")
			return
		}
		rebalanced := k.processPosition(cycleLogger, p, height, &snapshot)
		pos, err := k.ranges.Position(p.PoolID)
		if err != nil {
			continue
		}
		snapshot.Positions = append(snapshot.Positions, types.PositionSnapshot{
			PoolID:      pos.PoolID,
			ChainID:     pos.ChainID,
			TokenPairID: pos.TokenPairID,
			LowerTick:   pos.LowerTick,
			UpperTick:   pos.UpperTick,
			Liquidity:   pos.Liquidity.String(),
			Rebalanced:  rebalanced,
		})
		if rebalanced {
			snapshot.RebalancesDone++
		}
	}

	k.saveSnapshot(cycleLogger, snapshot)
	metrics.CyclesTotal.Inc()
	cycleLogger.Info().
		Int("rebalances", snapshot.RebalancesDone).
		Int("migrations", len(snapshot.MigrationsBegun)).
		Str("cycleDuration", time.Since(cycleStart).String()).
		Msg("--- Keeper cycle completed ---")
}

// processPosition runs the drift check and migration check for one position.
// Returns whether a rebalance happened.
func (k *Keeper) processPosition(cycleLogger zerolog.Logger, p types.Position, height int64, snapshot *types.CycleSnapshot) bool {
	if !p.Active {
		return false
	}
	posLogger := cycleLogger.With().Uint64("poolId", uint64(p.PoolID)).Logger()

	currentTick, err := k.pool.CurrentTick(p.PoolID)
	if err != nil {
		posLogger.Error().Err(err).Msg("Skipping position: failed to read current tick")
		return false
	}

	rebalanced := false
	should, err := k.ranges.ShouldRebalance(p.PoolID, currentTick, height)
	if err != nil {
		posLogger.Error().Err(err).Msg("Skipping position: drift check failed")
		return false
	}
	if should {
		drift := ticks.DriftTicks(currentTick, p.LowerTick, p.UpperTick)
		posLogger.Info().
			Int32("currentTick", currentTick).
			Int32("drift", drift).
			Msg("Drift exceeds threshold, rebalancing")
		if err := k.ranges.Rebalance(p.PoolID, currentTick, height); err != nil {
			posLogger.Error().Err(err).Msg("Rebalance failed")
		} else {
			rebalanced = true
		}
	}

	if p.CrossChainEnabled {
		k.considerMigration(posLogger, p, snapshot)
	}
	return rebalanced
}

// considerMigration checks the yield registry for a better chain and, when the
// evaluator confirms profitability, opens and dispatches a migration.
func (k *Keeper) considerMigration(posLogger zerolog.Logger, p types.Position, snapshot *types.CycleSnapshot) {
	if !k.clearOrSkipOpenMigration(posLogger, p.PoolID) {
		return
	}

	now := time.Now()
	bestChain, deltaBps := k.registry.BestChain(p.TokenPairID, p.ChainID, k.params.FreshnessWindow, now)
	if bestChain == p.ChainID || deltaBps == 0 {
		return
	}

	totalValue, err := k.pool.PositionValueUSD(p.PoolID)
	if err != nil {
		posLogger.Error().Err(err).Msg("Skipping migration check: position value unavailable")
		return
	}

	verdict := k.evaluator.Evaluate(p.ChainID, bestChain, p.TokenPairID, totalValue, now)
	if !verdict.Profitable {
		posLogger.Debug().
			Uint64("bestChain", uint64(bestChain)).
			Int64("deltaBps", deltaBps).
			Str("reason", verdict.Reason).
			Msg("Better chain found but migration not profitable")
		return
	}

	// Withdraw the position's funds into the treasury before escrowing them.
	// In simulation mode the treasury is pre-funded; a live implementation
	// wires the withdrawal through the same pool adapter.
	amount0, amount1, err := ticks.AmountsForLiquidity(p.Liquidity, p.LowerTick, p.UpperTick)
	if err != nil {
		posLogger.Error().Err(err).Msg("Skipping migration: amount computation failed")
		return
	}

	m, err := k.orch.Create(k.initiator, p.ChainID, bestChain, p.TokenPairID, amount0, amount1, totalValue, now)
	if err != nil {
		posLogger.Warn().Err(err).Uint64("toChain", uint64(bestChain)).Msg("Migration creation rejected")
		return
	}
	k.openMigrations[p.PoolID] = m.ID
	if err := k.orch.Dispatch(m.ID); err != nil {
		posLogger.Error().Err(err).Str("migrationId", m.ID).Msg("Migration dispatch failed")
		return
	}
	snapshot.MigrationsBegun = append(snapshot.MigrationsBegun, m.ID)
	posLogger.Info().
		Str("migrationId", m.ID).
		Uint64("toChain", uint64(bestChain)).
		Float64("expectedYield", m.ExpectedYieldNative).
		Float64("estimatedCost", m.EstimatedCostNative).
		Msg("Migration dispatched")
}

// clearOrSkipOpenMigration reconciles the open migration recorded for a pool,
// if any. It returns true when the position is free to open a new migration.
// A completed migration means the position's funds now live on the destination
// chain, so the source position is retired instead of being migrated again.
func (k *Keeper) clearOrSkipOpenMigration(posLogger zerolog.Logger, poolID types.PoolID) bool {
	id, ok := k.openMigrations[poolID]
	if !ok {
		return true
	}

	m, err := k.orch.Get(id)
	if err != nil {
		// Unknown to the orchestrator. Drop the stale entry.
		delete(k.openMigrations, poolID)
		return true
	}

	switch m.Status {
	case types.MigrationPending:
		// Dispatch did not go through last cycle (e.g. paused). The escrow is
		// already held, so retry the dispatch rather than opening another.
		if err := k.orch.Dispatch(id); err != nil {
			posLogger.Warn().Err(err).Str("migrationId", id).Msg("Migration re-dispatch failed")
		}
		return false
	case types.MigrationInProgress:
		posLogger.Debug().Str("migrationId", id).Msg("Migration still in flight, skipping yield check")
		return false
	case types.MigrationCompleted:
		if err := k.ranges.Deactivate(poolID); err != nil {
			posLogger.Error().Err(err).Str("migrationId", id).Msg("Failed to retire migrated position")
		} else {
			posLogger.Info().Str("migrationId", id).Msg("Migration completed, source position retired")
		}
		return false
	default:
		// Failed or cancelled. The escrow was refunded, the position may try
		// again.
		delete(k.openMigrations, poolID)
		return true
	}
}

func (k *Keeper) saveSnapshot(cycleLogger zerolog.Logger, snapshot types.CycleSnapshot) {
	if k.snapshots == nil {
		return
	}
	id, err := k.snapshots.SaveCycleSnapshot(snapshot)
	if err != nil {
		cycleLogger.Error().Err(err).Msg("Failed to save cycle snapshot")
		return
	}
	cycleLogger.Info().Int64("snapshot_id", id).Msg("Cycle snapshot saved")
}
