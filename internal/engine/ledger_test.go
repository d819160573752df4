package engine_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditcontrol/internal/engine"
	"creditcontrol/internal/models"
)

func TestTransfer(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	token := env.finalizedLine(t)
	env.seedBalance(t, token, alice, decimal.NewFromInt(100))

	t.Run("Happy Path Moves Balance And Records Audit", func(t *testing.T) {
		require.NoError(t, env.ledger.Transfer(alice, token, bob, decimal.NewFromInt(40)))

		assert.True(t, env.balanceOf(t, token, alice).Equal(decimal.NewFromInt(60)))
		assert.True(t, env.balanceOf(t, token, bob).Equal(decimal.NewFromInt(40)))

		var record models.TransferRecord
		err := env.db.Where("token = ? AND from_address = ?", token.Hex(), alice.Hex()).
			Order("id desc").First(&record).Error
		require.NoError(t, err)
		assert.True(t, record.PriceChecked)
		assert.True(t, record.PoolPrice.IsPositive())
	})

	t.Run("Insufficient Balance", func(t *testing.T) {
		err := env.ledger.Transfer(alice, token, bob, decimal.NewFromInt(1000))
		assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
		assert.True(t, env.balanceOf(t, token, alice).Equal(decimal.NewFromInt(60)))
	})

	t.Run("Invalid Parameters", func(t *testing.T) {
		assert.ErrorIs(t, env.ledger.Transfer(alice, token, bob, decimal.Zero), engine.ErrInvalidParameters)
		assert.ErrorIs(t, env.ledger.Transfer(alice, token, common.Address{}, decimal.NewFromInt(1)), engine.ErrInvalidParameters)
	})

	t.Run("Unknown Line", func(t *testing.T) {
		missing := common.HexToAddress("0xeee0000000000000000000000000000000000001")
		err := env.ledger.Transfer(alice, missing, bob, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, engine.ErrInvalidState)
	})
}

func TestTransferPriceGate(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	token := env.finalizedLine(t)
	env.seedBalance(t, token, alice, decimal.NewFromInt(100))

	status, err := env.ledger.GetCreditLineStatus(token)
	require.NoError(t, err)
	pool := common.HexToAddress(status.Position.PoolAddress)

	t.Run("Stale Price Blocks Transfer", func(t *testing.T) {
		// External trading pushed the pool 10% off the accrual curve.
		require.NoError(t, env.client.SetPrice(pool, decimal.NewFromFloat(1.10)))

		err := env.ledger.Transfer(alice, token, bob, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, engine.ErrStalePrice)
		assert.True(t, env.balanceOf(t, token, bob).IsZero())
	})

	t.Run("Accrue And Retry Recovers", func(t *testing.T) {
		// Accrual rebalances the concentrated position, snapping the pool
		// back onto the accrual-implied price.
		_, err := env.ledger.AccrueInterest(token)
		require.NoError(t, err)

		valid, poolPrice, expected, err := env.ledger.ValidatePrice(token)
		require.NoError(t, err)
		assert.True(t, valid, "pool %s expected %s", poolPrice, expected)

		require.NoError(t, env.ledger.Transfer(alice, token, bob, decimal.NewFromInt(10)))
		assert.True(t, env.balanceOf(t, token, bob).Equal(decimal.NewFromInt(10)))
	})

	t.Run("Disabled Gate Skips The Check", func(t *testing.T) {
		require.NoError(t, env.ledger.SetPriceValidation(testCreator, token, false))
		require.NoError(t, env.client.SetPrice(pool, decimal.NewFromFloat(2.0)))

		require.NoError(t, env.ledger.Transfer(alice, token, bob, decimal.NewFromInt(5)))

		var record models.TransferRecord
		err := env.db.Where("token = ?", token.Hex()).Order("id desc").First(&record).Error
		require.NoError(t, err)
		assert.False(t, record.PriceChecked)
	})
}

func TestValidatePrice(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	token := env.finalizedLine(t)

	status, err := env.ledger.GetCreditLineStatus(token)
	require.NoError(t, err)
	pool := common.HexToAddress(status.Position.PoolAddress)

	t.Run("Fresh Pool Is Valid", func(t *testing.T) {
		valid, poolPrice, expected, err := env.ledger.ValidatePrice(token)
		require.NoError(t, err)
		assert.True(t, valid, "pool %s expected %s", poolPrice, expected)
	})

	t.Run("Extrapolates Expected Price Between Accruals", func(t *testing.T) {
		env.backdateAccrual(t, token, 30*24*time.Hour)
		_, _, expected, err := env.ledger.ValidatePrice(token)
		require.NoError(t, err)
		assert.True(t, expected.GreaterThan(decimal.NewFromInt(1)), "expected %s", expected)
	})

	t.Run("Deviation Reported Without Mutation", func(t *testing.T) {
		require.NoError(t, env.client.SetPrice(pool, decimal.NewFromFloat(1.5)))
		valid, poolPrice, _, err := env.ledger.ValidatePrice(token)
		require.NoError(t, err)
		assert.False(t, valid)
		assert.True(t, poolPrice.Equal(decimal.NewFromFloat(1.5)))
	})
}

func TestAccrueInterest(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	token := env.finalizedLine(t)

	t.Run("Advances Price Along The Curve", func(t *testing.T) {
		env.backdateAccrual(t, token, 365*24*time.Hour)

		price, err := env.ledger.AccrueInterest(token)
		require.NoError(t, err)
		// 5% APY over one year on a stored price of 1.
		assert.True(t, price.GreaterThan(decimal.NewFromFloat(1.049)), "price %s", price)
		assert.True(t, price.LessThan(decimal.NewFromFloat(1.051)), "price %s", price)

		var line models.CreditLine
		require.NoError(t, env.db.Where("token_address = ?", token.Hex()).First(&line).Error)
		assert.True(t, line.CurrentPrice.Equal(price))
		assert.WithinDuration(t, time.Now(), line.LastAccrualTime, 5*time.Second)
	})

	t.Run("Rebalances The Concentrated Position", func(t *testing.T) {
		var count int64
		require.NoError(t, env.db.Model(&models.RebalanceRecord{}).
			Where("credit_line_token = ?", token.Hex()).Count(&count).Error)
		assert.Positive(t, count)
	})

	t.Run("Failed Rebalance Leaves Accrual Retryable", func(t *testing.T) {
		env.backdateAccrual(t, token, 30*24*time.Hour)

		env.client.FailNextMint()
		_, err := env.ledger.AccrueInterest(token)
		require.ErrorIs(t, err, engine.ErrMintFailed)

		// The stored price did not move, the old position survived, and the
		// next accrual covers the same interval.
		price, err := env.ledger.AccrueInterest(token)
		require.NoError(t, err)
		assert.True(t, price.GreaterThan(decimal.NewFromInt(1)), "price %s", price)

		valid, poolPrice, expected, err := env.ledger.ValidatePrice(token)
		require.NoError(t, err)
		assert.True(t, valid, "pool %s expected %s", poolPrice, expected)
	})

	t.Run("Unfinalized Line Rejected", func(t *testing.T) {
		_, unfinalized, err := env.saga.DeployAndInitialize(testCreator, testParams())
		require.NoError(t, err)
		_, err = env.ledger.AccrueInterest(unfinalized)
		assert.ErrorIs(t, err, engine.ErrInvalidState)
	})
}

func TestWithdrawCredit(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	token := env.finalizedLine(t)
	initial := testParams().InitialLiquidity

	t.Run("Borrower Draws Available Liquidity", func(t *testing.T) {
		require.NoError(t, env.ledger.WithdrawCredit(testBorrower, token, decimal.NewFromInt(400)))

		status, err := env.ledger.GetCreditLineStatus(token)
		require.NoError(t, err)
		assert.True(t, status.AvailableLiquidity.Equal(initial.Sub(decimal.NewFromInt(400))))
	})

	t.Run("Non Borrower Rejected", func(t *testing.T) {
		err := env.ledger.WithdrawCredit(alice, token, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, engine.ErrUnauthorized)
	})

	t.Run("Cannot Overdraw", func(t *testing.T) {
		err := env.ledger.WithdrawCredit(testBorrower, token, decimal.NewFromInt(601))
		assert.ErrorIs(t, err, engine.ErrInsufficientBalance)

		// Exactly the remainder still works.
		require.NoError(t, env.ledger.WithdrawCredit(testBorrower, token, decimal.NewFromInt(600)))
		status, err := env.ledger.GetCreditLineStatus(token)
		require.NoError(t, err)
		assert.True(t, status.AvailableLiquidity.IsZero())
	})

	t.Run("Zero Amount Rejected", func(t *testing.T) {
		err := env.ledger.WithdrawCredit(testBorrower, token, decimal.Zero)
		assert.ErrorIs(t, err, engine.ErrInvalidParameters)
	})
}

func TestSetPriceValidation(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	token := env.finalizedLine(t)

	t.Run("Owner Only", func(t *testing.T) {
		err := env.ledger.SetPriceValidation(alice, token, false)
		assert.ErrorIs(t, err, engine.ErrUnauthorized)
	})

	t.Run("Owner Toggles", func(t *testing.T) {
		require.NoError(t, env.ledger.SetPriceValidation(testCreator, token, false))
		var line models.CreditLine
		require.NoError(t, env.db.Where("token_address = ?", token.Hex()).First(&line).Error)
		assert.False(t, line.PriceValidationEnabled)
	})
}

func TestLedgerEmergencyWithdraw(t *testing.T) {
	env, cleanup := setupTestEnv(t)
	defer cleanup()
	token := env.finalizedLine(t)

	t.Run("Owner Only", func(t *testing.T) {
		err := env.ledger.EmergencyWithdraw(alice, token, testAsset, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, engine.ErrUnauthorized)
	})

	t.Run("Audited", func(t *testing.T) {
		require.NoError(t, env.ledger.EmergencyWithdraw(testOwner, token, testAsset, decimal.NewFromInt(10)))

		var record models.AdminWithdrawal
		require.NoError(t, env.db.Where("source = ?", "ledger").First(&record).Error)
		assert.Equal(t, testOwner.Hex(), record.Caller)
		assert.True(t, record.Amount.Equal(decimal.NewFromInt(10)))
	})
}
