package engine_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"creditcontrol/internal/engine"
)

func TestAccruedPrice(t *testing.T) {
	one := decimal.NewFromInt(1)
	year := 365 * 24 * time.Hour

	t.Run("Full Year At Five Percent", func(t *testing.T) {
		got := engine.AccruedPrice(one, 500, year)
		assert.True(t, got.Equal(decimal.NewFromFloat(1.05)), "got %s", got)
	})

	t.Run("Half Year Is Half The Interest", func(t *testing.T) {
		got := engine.AccruedPrice(one, 500, year/2)
		assert.True(t, got.Equal(decimal.NewFromFloat(1.025)), "got %s", got)
	})

	t.Run("Zero Elapsed Returns Base", func(t *testing.T) {
		assert.True(t, engine.AccruedPrice(one, 500, 0).Equal(one))
	})

	t.Run("Negative Elapsed Returns Base", func(t *testing.T) {
		assert.True(t, engine.AccruedPrice(one, 500, -time.Hour).Equal(one))
	})

	t.Run("Zero Apy Holds Price Flat", func(t *testing.T) {
		assert.True(t, engine.AccruedPrice(one, 0, year).Equal(one))
	})

	t.Run("Compounds Across Intervals", func(t *testing.T) {
		// Two accruals of half a year each exceed one accrual of a full year,
		// since the second interval grows the already-accrued price.
		half := engine.AccruedPrice(one, 500, year/2)
		twice := engine.AccruedPrice(half, 500, year/2)
		once := engine.AccruedPrice(one, 500, year)
		assert.True(t, twice.GreaterThan(once), "twice %s once %s", twice, once)
	})

	t.Run("Scales With Base", func(t *testing.T) {
		base := decimal.NewFromFloat(2.5)
		got := engine.AccruedPrice(base, 1000, year)
		assert.True(t, got.Equal(decimal.NewFromFloat(2.75)), "got %s", got)
	})
}

func TestWithinTolerance(t *testing.T) {
	one := decimal.NewFromInt(1)

	t.Run("Exact Match", func(t *testing.T) {
		assert.True(t, engine.WithinTolerance(one, one, 100))
	})

	t.Run("Boundary Is Inclusive", func(t *testing.T) {
		assert.True(t, engine.WithinTolerance(decimal.NewFromFloat(1.01), one, 100))
		assert.True(t, engine.WithinTolerance(decimal.NewFromFloat(0.99), one, 100))
	})

	t.Run("Just Past Boundary Fails", func(t *testing.T) {
		assert.False(t, engine.WithinTolerance(decimal.NewFromFloat(1.0101), one, 100))
		assert.False(t, engine.WithinTolerance(decimal.NewFromFloat(0.9899), one, 100))
	})

	t.Run("Relative To Expected", func(t *testing.T) {
		expected := decimal.NewFromInt(200)
		assert.True(t, engine.WithinTolerance(decimal.NewFromInt(202), expected, 100))
		assert.False(t, engine.WithinTolerance(decimal.NewFromInt(203), expected, 100))
	})

	t.Run("Zero Expected Only Matches Zero", func(t *testing.T) {
		assert.True(t, engine.WithinTolerance(decimal.Zero, decimal.Zero, 100))
		assert.False(t, engine.WithinTolerance(decimal.NewFromFloat(0.0001), decimal.Zero, 100))
	})
}
