package amm

import (
	"math"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Tick bounds and defaults follow the concentrated-liquidity convention:
// price(tick) = 1.0001^tick, usable ticks in [-887272, 887272].
const (
	MinTick = -887272
	MaxTick = 887272

	// DefaultTickSpacing is the spacing the engine creates pools at.
	DefaultTickSpacing = 100

	// concentratedHalfWidth is the deterministic half-width, in spacings, of
	// the concentrated position minted around a target price.
	concentratedHalfWidth = 10
)

var tickBase = math.Log(1.0001)

// PriceToTick returns the largest tick whose price does not exceed p.
// p must be positive.
func PriceToTick(p decimal.Decimal) int {
	f, _ := p.Float64()
	if f <= 0 {
		return MinTick
	}
	tick := int(math.Floor(math.Log(f) / tickBase))
	if tick < MinTick {
		return MinTick
	}
	if tick > MaxTick {
		return MaxTick
	}
	return tick
}

// TickToPrice returns 1.0001^tick as a decimal.
func TickToPrice(tick int) decimal.Decimal {
	return decimal.NewFromFloat(math.Exp(float64(tick) * tickBase))
}

// AlignTick rounds tick down (toward negative infinity) to a multiple of
// spacing.
func AlignTick(tick, spacing int) int {
	q := tick / spacing
	if tick%spacing != 0 && tick < 0 {
		q--
	}
	return q * spacing
}

// FullRange returns the widest usable range at the given spacing.
func FullRange(spacing int) (int, int) {
	upper := (MaxTick / spacing) * spacing
	return -upper, upper
}

// ConcentratedRange returns the deterministic tick range for a concentrated
// position centered on target: the aligned target tick plus/minus a fixed
// number of spacings, clamped to the usable range.
func ConcentratedRange(target decimal.Decimal, spacing int) (int, int) {
	center := AlignTick(PriceToTick(target), spacing)
	lower := center - concentratedHalfWidth*spacing
	upper := center + concentratedHalfWidth*spacing
	minFull, maxFull := FullRange(spacing)
	if lower < minFull {
		lower = minFull
	}
	if upper > maxFull {
		upper = maxFull
	}
	return lower, upper
}

// RangeMidPrice returns the price at the midpoint of a tick range.
func RangeMidPrice(tickLower, tickUpper int) decimal.Decimal {
	return TickToPrice((tickLower + tickUpper) / 2)
}

// SortTokens orders a pair the way pool factories do, by ascending address.
func SortTokens(a, b common.Address) (common.Address, common.Address) {
	if strings.ToLower(a.Hex()) <= strings.ToLower(b.Hex()) {
		return a, b
	}
	return b, a
}
