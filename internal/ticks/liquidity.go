/*

This file contains the liquidity sizing math: converting the two token balances
returned by a withdrawal into the liquidity deployable at a new range, using the
standard concentrated-liquidity formula at the assumed mid price of that range.

Intermediate math runs in float64 (the magnitudes here are far below float64
precision loss territory for sizing decisions); results cross back into
sdkmath.Int through decimal string conversion to avoid binary rounding artifacts.

*/

package ticks

import (
	"fmt"
	"math"

	sdkmath "cosmossdk.io/math"

	"github.com/omnipool-labs/alm/internal/types"
)

// SqrtPriceAtTick returns sqrt(1.0001^tick).
func SqrtPriceAtTick(tick int32) float64 {
	return math.Pow(1.0001, float64(tick)/2)
}

// LiquidityForAmounts computes the liquidity deployable between lower and upper
// given token balances amount0 and amount1, assuming the current price sits at
// the midpoint of the range. Zero liquidity is a valid result, not an error.
func LiquidityForAmounts(amount0, amount1 sdkmath.Int, lower, upper int32) (sdkmath.Int, error) {
	if lower >= upper {
		return sdkmath.ZeroInt(), types.Validationf("lower tick %d must be below upper tick %d", lower, upper)
	}
	if amount0.IsNil() || amount1.IsNil() {
		return sdkmath.ZeroInt(), types.Validationf("token amounts must not be nil")
	}
	if amount0.IsNegative() || amount1.IsNegative() {
		return sdkmath.ZeroInt(), types.Validationf("token amounts must not be negative")
	}

	mid := lower + (upper-lower)/2
	sqrtP := SqrtPriceAtTick(mid)
	sqrtLo := SqrtPriceAtTick(lower)
	sqrtHi := SqrtPriceAtTick(upper)

	a0, err := intToFloat(amount0)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}
	a1, err := intToFloat(amount1)
	if err != nil {
		return sdkmath.ZeroInt(), err
	}

	// L0 = amount0 * sqrtP * sqrtHi / (sqrtHi - sqrtP)
	// L1 = amount1 / (sqrtP - sqrtLo)
	// The deployable liquidity is the smaller of the two.
	var l0, l1 float64
	l0 = math.Inf(1)
	l1 = math.Inf(1)
	if sqrtHi > sqrtP {
		l0 = a0 * sqrtP * sqrtHi / (sqrtHi - sqrtP)
	}
	if sqrtP > sqrtLo {
		l1 = a1 / (sqrtP - sqrtLo)
	}

	liquidity := math.Min(l0, l1)
	if math.IsInf(liquidity, 1) {
		// Degenerate geometry; nothing deployable.
		liquidity = 0
	}
	if liquidity < 0 || math.IsNaN(liquidity) {
		return sdkmath.ZeroInt(), types.Invariantf("liquidity computation produced %f", liquidity)
	}
	return floatToInt(liquidity)
}

// AmountsForLiquidity is the inverse of LiquidityForAmounts: the token amounts
// represented by a liquidity figure between lower and upper, assuming the
// current price sits at the midpoint of the range.
func AmountsForLiquidity(liquidity sdkmath.Int, lower, upper int32) (amount0, amount1 sdkmath.Int, err error) {
	if lower >= upper {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), types.Validationf("lower tick %d must be below upper tick %d", lower, upper)
	}
	l, err := intToFloat(liquidity)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}

	mid := lower + (upper-lower)/2
	sqrtP := SqrtPriceAtTick(mid)
	sqrtLo := SqrtPriceAtTick(lower)
	sqrtHi := SqrtPriceAtTick(upper)

	a0 := l * (sqrtHi - sqrtP) / (sqrtP * sqrtHi)
	a1 := l * (sqrtP - sqrtLo)

	amount0, err = floatToInt(a0)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	amount1, err = floatToInt(a1)
	if err != nil {
		return sdkmath.ZeroInt(), sdkmath.ZeroInt(), err
	}
	return amount0, amount1, nil
}

// intToFloat converts an sdkmath.Int to float64, rejecting non-finite results.
func intToFloat(amount sdkmath.Int) (float64, error) {
	dec := sdkmath.LegacyNewDecFromInt(amount)
	f, err := dec.Float64()
	if err != nil {
		return 0, types.Validationf("amount %s not representable: %v", amount, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, types.Validationf("amount %s converts to non-finite float", amount)
	}
	return f, nil
}

// floatToInt truncates a non-negative float64 into an sdkmath.Int via decimal
// string conversion.
func floatToInt(v float64) (sdkmath.Int, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sdkmath.ZeroInt(), types.Invariantf("value is not finite: %f", v)
	}
	if v < 0 {
		return sdkmath.ZeroInt(), types.Invariantf("value is negative: %f", v)
	}
	if v == 0 {
		return sdkmath.ZeroInt(), nil
	}
	dec, err := sdkmath.LegacyNewDecFromStr(fmt.Sprintf("%.0f", math.Floor(v)))
	if err != nil {
		return sdkmath.ZeroInt(), types.Invariantf("decimal conversion failed for %f: %v", v, err)
	}
	return dec.TruncateInt(), nil
}
