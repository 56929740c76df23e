package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnipool-labs/alm/internal/bridge"
	"github.com/omnipool-labs/alm/internal/chains"
	"github.com/omnipool-labs/alm/internal/types"
	"github.com/omnipool-labs/alm/internal/yieldregistry"
)

const (
	updater = "oracle-updater"
	pair    = types.TokenPairID("ATOM-USDC")
)

var testParams = types.PolicyParameters{
	CooldownBlocks:       100,
	YieldHorizonDays:     30,
	ProfitBufferBps:      1000,
	FreshnessWindow:      15 * time.Minute,
	MinMigrationValueUSD: 1_000,
	MaxMigrationValueUSD: 5_000_000,
}

// newFixture wires two active chains whose destination gas estimate resolves
// to baseGasUnits(1) * gasPrice, and a bridge quoting a flat fee.
func newFixture(t *testing.T, flatFeeUSD float64) (*Evaluator, *yieldregistry.Registry, *bridge.SimBridge, time.Time) {
	t.Helper()

	chainReg := chains.NewRegistry()
	require.NoError(t, chainReg.Register(types.ChainLink{
		ChainID: 1, BridgeEndpointRef: "bridge-1", BaseGasUnits: 1, Active: true,
	}))
	require.NoError(t, chainReg.Register(types.ChainLink{
		ChainID: 2, BridgeEndpointRef: "bridge-2", BaseGasUnits: 1, Active: true,
	}))

	yields := yieldregistry.NewRegistry(updater)
	simBridge := bridge.NewSimBridge(flatFeeUSD, 0)
	return New(yields, chainReg, simBridge, testParams), yields, simBridge, time.Now()
}

func TestEvaluateProfitable(t *testing.T) {
	eval, yields, _, now := newFixture(t, 5.0)

	// 400 bps at home, 800 bps at the destination, gas price 2 against one
	// base gas unit: cost 5 + 2 = 7, buffered to 7.7.
	require.NoError(t, yields.Update(updater, 1, pair, 400, 1_000_000, 0, now))
	require.NoError(t, yields.Update(updater, 2, pair, 800, 1_000_000, 2, now))

	v := eval.Evaluate(1, 2, pair, 10_000, now)
	assert.True(t, v.Profitable, "reason: %s", v.Reason)
	assert.InDelta(t, 32.88, v.ExpectedYield, 0.01)
	assert.InDelta(t, 7.0, v.EstimatedCost, 0.001)
}

func TestEvaluateNotProfitableSmallDelta(t *testing.T) {
	eval, yields, _, now := newFixture(t, 5.0)

	require.NoError(t, yields.Update(updater, 1, pair, 400, 1_000_000, 0, now))
	require.NoError(t, yields.Update(updater, 2, pair, 420, 1_000_000, 2, now))

	v := eval.Evaluate(1, 2, pair, 10_000, now)
	assert.False(t, v.Profitable)
	assert.InDelta(t, 1.64, v.ExpectedYield, 0.01)
	assert.NotEmpty(t, v.Reason)
}

func TestEvaluateNegativeDeltaClampsToZero(t *testing.T) {
	eval, yields, _, now := newFixture(t, 5.0)

	require.NoError(t, yields.Update(updater, 1, pair, 800, 1_000_000, 0, now))
	require.NoError(t, yields.Update(updater, 2, pair, 400, 1_000_000, 2, now))

	v := eval.Evaluate(1, 2, pair, 10_000, now)
	assert.False(t, v.Profitable)
	assert.Zero(t, v.ExpectedYield)
}

func TestEvaluateDegenerateInputs(t *testing.T) {
	eval, yields, _, now := newFixture(t, 5.0)
	require.NoError(t, yields.Update(updater, 1, pair, 400, 1_000_000, 0, now))
	require.NoError(t, yields.Update(updater, 2, pair, 800, 1_000_000, 2, now))

	assert.False(t, eval.Evaluate(1, 2, pair, 0, now).Profitable)
	assert.False(t, eval.Evaluate(1, 1, pair, 10_000, now).Profitable)
	assert.False(t, eval.Evaluate(1, 99, pair, 10_000, now).Profitable)
	assert.False(t, eval.Evaluate(99, 2, pair, 10_000, now).Profitable)
}

func TestEvaluateStaleYieldData(t *testing.T) {
	eval, yields, _, now := newFixture(t, 5.0)

	stale := now.Add(-testParams.FreshnessWindow - time.Minute)
	require.NoError(t, yields.Update(updater, 1, pair, 400, 1_000_000, 0, stale))
	require.NoError(t, yields.Update(updater, 2, pair, 800, 1_000_000, 2, now))

	v := eval.Evaluate(1, 2, pair, 10_000, now)
	assert.False(t, v.Profitable)
	assert.Equal(t, "no fresh yield data for source chain", v.Reason)
}

func TestEvaluateInactiveDestination(t *testing.T) {
	eval, yields, _, now := newFixture(t, 5.0)
	require.NoError(t, yields.Update(updater, 1, pair, 400, 1_000_000, 0, now))
	require.NoError(t, yields.Update(updater, 2, pair, 800, 1_000_000, 2, now))

	require.NoError(t, eval.chains.SetActive(2, false))
	v := eval.Evaluate(1, 2, pair, 10_000, now)
	assert.False(t, v.Profitable)
	assert.Equal(t, "destination chain inactive", v.Reason)
}

func TestEvaluateGasAboveThreshold(t *testing.T) {
	eval, yields, _, now := newFixture(t, 5.0)
	require.NoError(t, eval.chains.Register(types.ChainLink{
		ChainID: 2, BridgeEndpointRef: "bridge-2", BaseGasUnits: 1,
		GasPriceThreshold: 1.5, Active: true,
	}))
	require.NoError(t, yields.Update(updater, 1, pair, 400, 1_000_000, 0, now))
	require.NoError(t, yields.Update(updater, 2, pair, 800, 1_000_000, 2, now))

	v := eval.Evaluate(1, 2, pair, 10_000, now)
	assert.False(t, v.Profitable)
	assert.Equal(t, "destination gas price above threshold", v.Reason)
}

func TestEvaluateYieldDeltaBelowChainThreshold(t *testing.T) {
	eval, yields, _, now := newFixture(t, 5.0)
	require.NoError(t, eval.chains.Register(types.ChainLink{
		ChainID: 2, BridgeEndpointRef: "bridge-2", BaseGasUnits: 1,
		YieldThresholdBps: 500, Active: true,
	}))
	require.NoError(t, yields.Update(updater, 1, pair, 400, 1_000_000, 0, now))
	require.NoError(t, yields.Update(updater, 2, pair, 800, 1_000_000, 2, now))

	v := eval.Evaluate(1, 2, pair, 10_000, now)
	assert.False(t, v.Profitable)
	assert.Equal(t, "yield delta below destination chain threshold", v.Reason)
}

func TestEvaluateBridgeQuoteFailure(t *testing.T) {
	eval, yields, simBridge, now := newFixture(t, 5.0)
	require.NoError(t, yields.Update(updater, 1, pair, 400, 1_000_000, 0, now))
	require.NoError(t, yields.Update(updater, 2, pair, 800, 1_000_000, 2, now))

	simBridge.FailQuotes = true
	v := eval.Evaluate(1, 2, pair, 10_000, now)
	assert.False(t, v.Profitable)
	assert.Equal(t, "bridge quote unavailable", v.Reason)
}
