/*

This file contains the tick arithmetic shared by the range manager: spacing
alignment, global bound clamping and new-range computation.

Ticks follow the usual concentrated-liquidity pricing scheme: price at tick t is
1.0001^t, so one tick is one basis point of price.

*/

package ticks

import (
	"github.com/omnipool-labs/alm/internal/types"
)

// Global tick bounds of the pricing scheme.
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// AlignDown floors tick to the nearest multiple of spacing, rounding toward
// negative infinity so alignment behaves the same on both sides of zero.
func AlignDown(tick, spacing int32) int32 {
	if spacing <= 0 {
		return tick
	}
	q := tick / spacing
	if tick%spacing != 0 && tick < 0 {
		q--
	}
	return q * spacing
}

// Clamp bounds tick to the aligned global limits.
func Clamp(tick, spacing int32) int32 {
	lo := AlignDown(MinTick, spacing)
	if lo < MinTick {
		lo += spacing
	}
	hi := AlignDown(MaxTick, spacing)
	if tick < lo {
		return lo
	}
	if tick > hi {
		return hi
	}
	return tick
}

// ComputeRange centers a range of widthTicks on currentTick. Both bounds are
// independently floor-aligned to spacing and clamped to the global bounds. The
// result always satisfies lower < upper: an out-of-bounds alignment is clamped,
// never rejected.
func ComputeRange(currentTick, widthTicks, spacing int32) (lower, upper int32, err error) {
	if spacing <= 0 {
		return 0, 0, types.Validationf("tick spacing must be positive, got %d", spacing)
	}
	if widthTicks <= 0 {
		return 0, 0, types.Validationf("range width must be positive, got %d", widthTicks)
	}

	half := widthTicks / 2
	lower = Clamp(AlignDown(currentTick-half, spacing), spacing)
	upper = Clamp(AlignDown(currentTick+half, spacing), spacing)

	// Alignment of a narrow range can collapse the bounds; widen by one spacing
	// on whichever side has room.
	if upper <= lower {
		if upper+spacing <= Clamp(MaxTick, spacing) {
			upper = Clamp(upper+spacing, spacing)
		} else {
			lower = Clamp(lower-spacing, spacing)
		}
	}
	if upper <= lower {
		return 0, 0, types.Validationf("cannot fit range of width %d at tick %d with spacing %d", widthTicks, currentTick, spacing)
	}
	return lower, upper, nil
}

// DriftTicks is the distance from currentTick to the midpoint of [lower, upper).
func DriftTicks(currentTick, lower, upper int32) int32 {
	mid := lower + (upper-lower)/2
	d := currentTick - mid
	if d < 0 {
		d = -d
	}
	return d
}
