package engine

import (
	"time"

	"github.com/shopspring/decimal"
)

// Interest accrual is linear within an accrual interval and compounds across
// intervals: each accrual advances the stored price by
// apyBps * elapsed / (365d * 10000) of itself, then resets the interval.

const yearSeconds = 365 * 24 * 60 * 60

var bpsDenominator = decimal.NewFromInt(10000)

// AccruedPrice returns base grown linearly at apyBps over elapsed.
// elapsed values below zero are treated as zero.
func AccruedPrice(base decimal.Decimal, apyBps int64, elapsed time.Duration) decimal.Decimal {
	secs := int64(elapsed / time.Second)
	if secs <= 0 {
		return base
	}
	rate := decimal.NewFromInt(apyBps).
		Mul(decimal.NewFromInt(secs)).
		Div(bpsDenominator.Mul(decimal.NewFromInt(yearSeconds)))
	return base.Add(base.Mul(rate))
}

// WithinTolerance reports whether pool is within toleranceBps of expected,
// measured relative to expected. The boundary itself counts as valid.
func WithinTolerance(pool, expected decimal.Decimal, toleranceBps int64) bool {
	if expected.IsZero() {
		return pool.IsZero()
	}
	diff := pool.Sub(expected).Abs()
	// |pool - expected| / expected <= tolerance / 10000, cross-multiplied to
	// avoid division rounding at the boundary.
	return diff.Mul(bpsDenominator).LessThanOrEqual(expected.Abs().Mul(decimal.NewFromInt(toleranceBps)))
}
