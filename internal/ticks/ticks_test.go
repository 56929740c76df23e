package ticks

import (
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlignDown(t *testing.T) {
	assert.Equal(t, int32(100), AlignDown(105, 10))
	assert.Equal(t, int32(100), AlignDown(100, 10))
	assert.Equal(t, int32(0), AlignDown(9, 10))

	// Alignment floors toward negative infinity on both sides of zero.
	assert.Equal(t, int32(-110), AlignDown(-105, 10))
	assert.Equal(t, int32(-100), AlignDown(-100, 10))
	assert.Equal(t, int32(-10), AlignDown(-1, 10))

	// Non-positive spacing leaves the tick untouched.
	assert.Equal(t, int32(123), AlignDown(123, 0))
}

func TestComputeRangeAligned(t *testing.T) {
	lower, upper, err := ComputeRange(205, 200, 10)
	require.NoError(t, err)

	assert.Less(t, lower, upper)
	assert.Zero(t, lower%10)
	assert.Zero(t, upper%10)
	assert.Equal(t, int32(100), lower)
	assert.Equal(t, int32(300), upper)
}

func TestComputeRangeNegativeCenter(t *testing.T) {
	lower, upper, err := ComputeRange(-205, 200, 10)
	require.NoError(t, err)

	assert.Less(t, lower, upper)
	assert.Zero(t, lower%10)
	assert.Zero(t, upper%10)
	assert.Equal(t, int32(-310), lower)
	assert.Equal(t, int32(-110), upper)
}

func TestComputeRangeCollapseWidens(t *testing.T) {
	// A width below the spacing collapses both bounds onto the same aligned
	// tick; the range must widen instead of degenerating.
	lower, upper, err := ComputeRange(500, 4, 60)
	require.NoError(t, err)
	assert.Less(t, lower, upper)
	assert.Equal(t, int32(60), upper-lower)
}

func TestComputeRangeClampsAtBounds(t *testing.T) {
	lower, upper, err := ComputeRange(MaxTick, 1000, 10)
	require.NoError(t, err)
	assert.Less(t, lower, upper)
	assert.LessOrEqual(t, upper, MaxTick)

	lower, upper, err = ComputeRange(MinTick, 1000, 10)
	require.NoError(t, err)
	assert.Less(t, lower, upper)
	assert.GreaterOrEqual(t, lower, MinTick)
}

func TestComputeRangeRejectsBadInputs(t *testing.T) {
	_, _, err := ComputeRange(0, 0, 10)
	assert.Error(t, err)

	_, _, err = ComputeRange(0, 100, 0)
	assert.Error(t, err)
}

func TestDriftTicks(t *testing.T) {
	assert.Equal(t, int32(0), DriftTicks(0, -100, 100))
	assert.Equal(t, int32(50), DriftTicks(50, -100, 100))
	assert.Equal(t, int32(50), DriftTicks(-50, -100, 100))
	assert.Equal(t, int32(250), DriftTicks(250, -100, 100))
}

func TestLiquidityForAmountsRoundTrip(t *testing.T) {
	amount0 := sdkmath.NewInt(5000)
	amount1 := sdkmath.NewInt(5000)

	liquidity, err := LiquidityForAmounts(amount0, amount1, -100, 100)
	require.NoError(t, err)
	require.False(t, liquidity.IsZero())

	back0, back1, err := AmountsForLiquidity(liquidity, -100, 100)
	require.NoError(t, err)

	// The deployable liquidity is the min of the two sides, so the round trip
	// never produces more than went in.
	assert.True(t, back0.LTE(amount0), "got %s want <= %s", back0, amount0)
	assert.True(t, back1.LTE(amount1), "got %s want <= %s", back1, amount1)
}

func TestLiquidityForAmountsZeroIsValid(t *testing.T) {
	liquidity, err := LiquidityForAmounts(sdkmath.ZeroInt(), sdkmath.ZeroInt(), -100, 100)
	require.NoError(t, err)
	assert.True(t, liquidity.IsZero())
}

func TestLiquidityForAmountsRejectsBadRange(t *testing.T) {
	_, err := LiquidityForAmounts(sdkmath.NewInt(1), sdkmath.NewInt(1), 100, 100)
	assert.Error(t, err)

	_, err = LiquidityForAmounts(sdkmath.NewInt(-1), sdkmath.NewInt(1), -100, 100)
	assert.Error(t, err)
}
