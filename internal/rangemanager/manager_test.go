package rangemanager

import (
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnipool-labs/alm/internal/pause"
	"github.com/omnipool-labs/alm/internal/pool"
	"github.com/omnipool-labs/alm/internal/types"
)

const (
	poolID   = types.PoolID(1)
	cooldown = int64(100)
)

func newFixture(t *testing.T) (*Manager, *pool.SimPool, *pause.Switch) {
	t.Helper()
	simPool := pool.NewSimPool()
	simPool.AddPool(poolID, 0, 10, 1.0, 1.0)
	pauseSwitch := &pause.Switch{}
	m, err := New(simPool, pauseSwitch, cooldown)
	require.NoError(t, err)
	return m, simPool, pauseSwitch
}

func testPosition() types.Position {
	return types.Position{
		PoolID:                poolID,
		ChainID:               1,
		TokenPairID:           "ATOM-USDC",
		LowerTick:             -100,
		UpperTick:             100,
		Liquidity:             sdkmath.ZeroInt(),
		RebalanceThresholdBps: 50,
		RangeWidthTicks:       200,
	}
}

func TestTrackValidatesAndActivates(t *testing.T) {
	m, _, _ := newFixture(t)

	require.NoError(t, m.Track(testPosition()))
	p, err := m.Position(poolID)
	require.NoError(t, err)
	assert.True(t, p.Active)

	// One position per pool.
	err = m.Track(testPosition())
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))

	bad := testPosition()
	bad.PoolID = 2
	bad.LowerTick, bad.UpperTick = 100, 100
	assert.Error(t, m.Track(bad))
}

func TestShouldRebalanceStrictThreshold(t *testing.T) {
	p := testPosition()
	p.Active = true

	// Drift equal to the threshold does not trigger; one past it does.
	assert.False(t, ShouldRebalance(p, 50, 1000, cooldown))
	assert.True(t, ShouldRebalance(p, 51, 1000, cooldown))
	assert.True(t, ShouldRebalance(p, -51, 1000, cooldown))
}

func TestShouldRebalanceCooldown(t *testing.T) {
	p := testPosition()
	p.Active = true
	p.LastRebalanceHeight = 1000

	// Massive drift changes nothing while the cooldown runs.
	assert.False(t, ShouldRebalance(p, 10_000, 1000, cooldown))
	assert.False(t, ShouldRebalance(p, 10_000, 1099, cooldown))
	assert.True(t, ShouldRebalance(p, 10_000, 1100, cooldown))
}

func TestShouldRebalanceInactive(t *testing.T) {
	p := testPosition()
	p.Active = false
	assert.False(t, ShouldRebalance(p, 10_000, 10_000, cooldown))
}

func TestRebalanceMovesRangeAndDeploysIdleFunds(t *testing.T) {
	m, simPool, _ := newFixture(t)
	require.NoError(t, m.Track(testPosition()))

	simPool.Fund(poolID, sdkmath.NewInt(100_000), sdkmath.NewInt(100_000))
	simPool.SetTick(poolID, 205)

	require.NoError(t, m.Rebalance(poolID, 205, 500))

	p, err := m.Position(poolID)
	require.NoError(t, err)
	assert.Less(t, p.LowerTick, p.UpperTick)
	assert.Zero(t, p.LowerTick%10)
	assert.Zero(t, p.UpperTick%10)
	assert.Equal(t, int32(100), p.LowerTick)
	assert.Equal(t, int32(300), p.UpperTick)
	assert.False(t, p.Liquidity.IsZero())
	assert.Equal(t, int64(500), p.LastRebalanceHeight)
}

func TestRebalanceZeroLiquidityIsNotAnError(t *testing.T) {
	m, _, _ := newFixture(t)
	require.NoError(t, m.Track(testPosition()))

	// Nothing to withdraw and nothing idle: the position simply holds no
	// liquidity on the new range.
	require.NoError(t, m.Rebalance(poolID, 205, 500))

	p, err := m.Position(poolID)
	require.NoError(t, err)
	assert.True(t, p.Liquidity.IsZero())
	assert.Equal(t, int32(100), p.LowerTick)
	assert.Equal(t, int32(300), p.UpperTick)
}

func TestRebalanceCooldownEnforcedDirectly(t *testing.T) {
	m, simPool, _ := newFixture(t)
	require.NoError(t, m.Track(testPosition()))
	simPool.Fund(poolID, sdkmath.NewInt(100_000), sdkmath.NewInt(100_000))

	require.NoError(t, m.Rebalance(poolID, 205, 500))

	// Immediately after a rebalance the cooldown rejects another, regardless
	// of how far the price has moved.
	err := m.Rebalance(poolID, 5000, 501)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrCooldownActive))

	should, err := m.ShouldRebalance(poolID, 5000, 501)
	require.NoError(t, err)
	assert.False(t, should)

	// Once the cooldown elapses the same call succeeds.
	require.NoError(t, m.Rebalance(poolID, 5000, 500+cooldown))
}

func TestRebalanceFailureLeavesStateUnchanged(t *testing.T) {
	m, simPool, _ := newFixture(t)
	pos := testPosition()
	pos.Liquidity = sdkmath.NewInt(1_000_000)
	require.NoError(t, m.Track(pos))

	// The manager believes more liquidity is deployed than the pool holds, so
	// the withdrawal fails and the whole operation must abort.
	_, _, err := simPool.ModifyLiquidity(poolID, -100, 100, sdkmath.NewInt(500_000))
	require.NoError(t, err)

	err = m.Rebalance(poolID, 205, 500)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrExternal))

	p, err := m.Position(poolID)
	require.NoError(t, err)
	assert.Equal(t, int32(-100), p.LowerTick)
	assert.Equal(t, int32(100), p.UpperTick)
	assert.Equal(t, int64(0), p.LastRebalanceHeight)
	assert.Equal(t, int64(1_000_000), p.Liquidity.Int64())
}

func TestRebalancePausedRejects(t *testing.T) {
	m, simPool, pauseSwitch := newFixture(t)
	require.NoError(t, m.Track(testPosition()))
	simPool.Fund(poolID, sdkmath.NewInt(100_000), sdkmath.NewInt(100_000))

	pauseSwitch.Pause()
	err := m.Rebalance(poolID, 205, 500)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrPaused))

	p, err := m.Position(poolID)
	require.NoError(t, err)
	assert.Equal(t, int32(-100), p.LowerTick)
	assert.Equal(t, int32(100), p.UpperTick)
	assert.True(t, p.Liquidity.IsZero())

	pauseSwitch.Resume()
	require.NoError(t, m.Rebalance(poolID, 205, 500))
}

func TestDeactivateBlocksRebalance(t *testing.T) {
	m, _, _ := newFixture(t)
	require.NoError(t, m.Track(testPosition()))
	require.NoError(t, m.Deactivate(poolID))

	err := m.Rebalance(poolID, 205, 500)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrValidation))
}
