package keeper

import (
	"context"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnipool-labs/alm/internal/bridge"
	"github.com/omnipool-labs/alm/internal/chains"
	"github.com/omnipool-labs/alm/internal/evaluator"
	"github.com/omnipool-labs/alm/internal/orchestrator"
	"github.com/omnipool-labs/alm/internal/pause"
	"github.com/omnipool-labs/alm/internal/pool"
	"github.com/omnipool-labs/alm/internal/rangemanager"
	"github.com/omnipool-labs/alm/internal/types"
	"github.com/omnipool-labs/alm/internal/yieldregistry"
)

const (
	updater        = "oracle-updater"
	keeperIdentity = "keeper-1"
	pair           = types.TokenPairID("ATOM-USDC")
	poolID         = types.PoolID(1)
)

var testParams = types.PolicyParameters{
	CooldownBlocks:       0,
	YieldHorizonDays:     30,
	ProfitBufferBps:      1000,
	FreshnessWindow:      15 * time.Minute,
	MinMigrationValueUSD: 1_000,
	MaxMigrationValueUSD: 5_000_000,
}

type fixture struct {
	keeper *Keeper
	pool   *pool.SimPool
	bridge *bridge.SimBridge
	ranges *rangemanager.Manager
	orch   *orchestrator.Orchestrator
	yields *yieldregistry.Registry
}

// newFixture runs the full component stack over simulated collaborators: one
// pool on chain 1 at tick 0 and a registered destination chain 2.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	chainReg := chains.NewRegistry()
	require.NoError(t, chainReg.Register(types.ChainLink{
		ChainID: 1, BridgeEndpointRef: "bridge-1", BaseGasUnits: 1, Active: true,
	}))
	require.NoError(t, chainReg.Register(types.ChainLink{
		ChainID: 2, BridgeEndpointRef: "bridge-2", BaseGasUnits: 1, Active: true,
	}))

	yields := yieldregistry.NewRegistry(updater)
	simPool := pool.NewSimPool()
	simPool.AddPool(poolID, 0, 10, 1.0, 1.0)

	simBridge := bridge.NewSimBridge(5.0, 0)
	pauseSwitch := &pause.Switch{}
	eval := evaluator.New(yields, chainReg, simBridge, testParams)

	treasury := orchestrator.NewMemoryTreasury()
	treasury.Fund(keeperIdentity, pair, sdkmath.NewInt(1_000_000_000), sdkmath.NewInt(1_000_000_000))

	orch, err := orchestrator.New(orchestrator.Config{
		Treasury:         treasury,
		Bridge:           simBridge,
		Chains:           chainReg,
		Evaluator:        eval,
		Pause:            pauseSwitch,
		Params:           testParams,
		AuthorizedCaller: "bridge-relayer",
		Admin:            "administrator",
	})
	require.NoError(t, err)

	ranges, err := rangemanager.New(simPool, pauseSwitch, testParams.CooldownBlocks)
	require.NoError(t, err)

	k, err := New(Config{
		Ranges:    ranges,
		Pool:      simPool,
		Registry:  yields,
		Evaluator: eval,
		Orch:      orch,
		Params:    testParams,
		Initiator: keeperIdentity,
	})
	require.NoError(t, err)

	return &fixture{keeper: k, pool: simPool, bridge: simBridge, ranges: ranges, orch: orch, yields: yields}
}

func TestCycleRebalancesDriftedPosition(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ranges.Track(types.Position{
		PoolID:                poolID,
		ChainID:               1,
		TokenPairID:           pair,
		LowerTick:             -100,
		UpperTick:             100,
		Liquidity:             sdkmath.ZeroInt(),
		RebalanceThresholdBps: 50,
		RangeWidthTicks:       200,
	}))

	// Idle funds in the pool get deployed when the rebalance fires.
	f.pool.Fund(poolID, sdkmath.NewInt(100_000), sdkmath.NewInt(100_000))
	f.pool.SetTick(poolID, 200)

	f.keeper.RunCycle(context.Background())

	p, err := f.ranges.Position(poolID)
	require.NoError(t, err)
	assert.Equal(t, int32(100), p.LowerTick)
	assert.Equal(t, int32(300), p.UpperTick)
	assert.False(t, p.Liquidity.IsZero())
	assert.Zero(t, p.LowerTick%10)
	assert.Zero(t, p.UpperTick%10)
}

func TestCycleLeavesUndriftedPositionAlone(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ranges.Track(types.Position{
		PoolID:                poolID,
		ChainID:               1,
		TokenPairID:           pair,
		LowerTick:             -100,
		UpperTick:             100,
		Liquidity:             sdkmath.ZeroInt(),
		RebalanceThresholdBps: 50,
		RangeWidthTicks:       200,
	}))
	f.pool.SetTick(poolID, 30)

	f.keeper.RunCycle(context.Background())

	p, err := f.ranges.Position(poolID)
	require.NoError(t, err)
	assert.Equal(t, int32(-100), p.LowerTick)
	assert.Equal(t, int32(100), p.UpperTick)
}

func TestCycleOpensProfitableMigration(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	require.NoError(t, f.yields.Update(updater, 1, pair, 400, 1_000_000, 0, now))
	require.NoError(t, f.yields.Update(updater, 2, pair, 3000, 1_000_000, 1, now))

	liquidity := sdkmath.NewInt(100_000_000)
	require.NoError(t, f.ranges.Track(types.Position{
		PoolID:                poolID,
		ChainID:               1,
		TokenPairID:           pair,
		LowerTick:             -100,
		UpperTick:             100,
		Liquidity:             liquidity,
		RebalanceThresholdBps: 50,
		RangeWidthTicks:       200,
		CrossChainEnabled:     true,
	}))
	_, _, err := f.pool.ModifyLiquidity(poolID, -100, 100, liquidity)
	require.NoError(t, err)

	f.keeper.RunCycle(context.Background())

	migrations := f.orch.List()
	require.Len(t, migrations, 1)
	m := migrations[0]
	assert.Equal(t, types.MigrationInProgress, m.Status)
	assert.Equal(t, types.ChainID(1), m.FromChain)
	assert.Equal(t, types.ChainID(2), m.ToChain)
	assert.Equal(t, keeperIdentity, m.Initiator)
	assert.Equal(t, 1, f.bridge.PendingCount())

	// The destination-side callback finalizes the migration.
	require.NoError(t, f.bridge.SettleAll(f.orch))
	got, err := f.orch.Get(m.ID)
	require.NoError(t, err)
	assert.Equal(t, types.MigrationCompleted, got.Status)
}

func TestCycleDoesNotDuplicateInFlightMigration(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	require.NoError(t, f.yields.Update(updater, 1, pair, 400, 1_000_000, 0, now))
	require.NoError(t, f.yields.Update(updater, 2, pair, 3000, 1_000_000, 1, now))

	liquidity := sdkmath.NewInt(100_000_000)
	require.NoError(t, f.ranges.Track(types.Position{
		PoolID:                poolID,
		ChainID:               1,
		TokenPairID:           pair,
		LowerTick:             -100,
		UpperTick:             100,
		Liquidity:             liquidity,
		RebalanceThresholdBps: 50,
		RangeWidthTicks:       200,
		CrossChainEnabled:     true,
	}))
	_, _, err := f.pool.ModifyLiquidity(poolID, -100, 100, liquidity)
	require.NoError(t, err)

	// The yield edge persists across cycles while the first migration is
	// still in flight. The position must not be escrowed a second time.
	f.keeper.RunCycle(context.Background())
	f.keeper.RunCycle(context.Background())
	f.keeper.RunCycle(context.Background())

	require.Len(t, f.orch.List(), 1)
	assert.Equal(t, 1, f.bridge.PendingCount())
}

func TestCycleRetiresPositionAfterMigrationCompletes(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	require.NoError(t, f.yields.Update(updater, 1, pair, 400, 1_000_000, 0, now))
	require.NoError(t, f.yields.Update(updater, 2, pair, 3000, 1_000_000, 1, now))

	liquidity := sdkmath.NewInt(100_000_000)
	require.NoError(t, f.ranges.Track(types.Position{
		PoolID:                poolID,
		ChainID:               1,
		TokenPairID:           pair,
		LowerTick:             -100,
		UpperTick:             100,
		Liquidity:             liquidity,
		RebalanceThresholdBps: 50,
		RangeWidthTicks:       200,
		CrossChainEnabled:     true,
	}))
	_, _, err := f.pool.ModifyLiquidity(poolID, -100, 100, liquidity)
	require.NoError(t, err)

	f.keeper.RunCycle(context.Background())
	require.NoError(t, f.bridge.SettleAll(f.orch))
	f.keeper.RunCycle(context.Background())

	// The funds moved to chain 2, so the source position is retired rather
	// than migrated again.
	require.Len(t, f.orch.List(), 1)
	p, err := f.ranges.Position(poolID)
	require.NoError(t, err)
	assert.False(t, p.Active)
}

func TestCycleRetriesAfterFailedMigration(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	require.NoError(t, f.yields.Update(updater, 1, pair, 400, 1_000_000, 0, now))
	require.NoError(t, f.yields.Update(updater, 2, pair, 3000, 1_000_000, 1, now))

	liquidity := sdkmath.NewInt(100_000_000)
	require.NoError(t, f.ranges.Track(types.Position{
		PoolID:                poolID,
		ChainID:               1,
		TokenPairID:           pair,
		LowerTick:             -100,
		UpperTick:             100,
		Liquidity:             liquidity,
		RebalanceThresholdBps: 50,
		RangeWidthTicks:       200,
		CrossChainEnabled:     true,
	}))
	_, _, err := f.pool.ModifyLiquidity(poolID, -100, 100, liquidity)
	require.NoError(t, err)

	f.bridge.FailTransfers = true
	f.keeper.RunCycle(context.Background())

	migrations := f.orch.List()
	require.Len(t, migrations, 1)
	assert.Equal(t, types.MigrationFailed, migrations[0].Status)

	// The escrow was refunded, so the next cycle may open a fresh attempt.
	f.bridge.FailTransfers = false
	f.keeper.RunCycle(context.Background())

	migrations = f.orch.List()
	require.Len(t, migrations, 2)
	assert.Equal(t, types.MigrationInProgress, migrations[0].Status)
}

func TestCycleSkipsMigrationWithoutYieldEdge(t *testing.T) {
	f := newFixture(t)
	now := time.Now()
	require.NoError(t, f.yields.Update(updater, 1, pair, 800, 1_000_000, 0, now))
	require.NoError(t, f.yields.Update(updater, 2, pair, 400, 1_000_000, 1, now))

	liquidity := sdkmath.NewInt(100_000_000)
	require.NoError(t, f.ranges.Track(types.Position{
		PoolID:                poolID,
		ChainID:               1,
		TokenPairID:           pair,
		LowerTick:             -100,
		UpperTick:             100,
		Liquidity:             liquidity,
		RebalanceThresholdBps: 50,
		RangeWidthTicks:       200,
		CrossChainEnabled:     true,
	}))
	_, _, err := f.pool.ModifyLiquidity(poolID, -100, 100, liquidity)
	require.NoError(t, err)

	f.keeper.RunCycle(context.Background())

	assert.Empty(t, f.orch.List())
	assert.Zero(t, f.bridge.PendingCount())
}

func TestCycleIgnoresDeactivatedPositions(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.ranges.Track(types.Position{
		PoolID:                poolID,
		ChainID:               1,
		TokenPairID:           pair,
		LowerTick:             -100,
		UpperTick:             100,
		Liquidity:             sdkmath.ZeroInt(),
		RebalanceThresholdBps: 50,
		RangeWidthTicks:       200,
	}))
	require.NoError(t, f.ranges.Deactivate(poolID))
	f.pool.SetTick(poolID, 500)

	f.keeper.RunCycle(context.Background())

	p, err := f.ranges.Position(poolID)
	require.NoError(t, err)
	assert.Equal(t, int32(-100), p.LowerTick)
	assert.Equal(t, int32(100), p.UpperTick)
}
