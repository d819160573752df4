package amm

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creditcontrol/internal/engine"
	"creditcontrol/internal/models"
)

var (
	adapterOwner = common.HexToAddress("0xaaa0000000000000000000000000000000000001")
	keeper       = common.HexToAddress("0xaaa0000000000000000000000000000000000002")
	stranger     = common.HexToAddress("0xaaa0000000000000000000000000000000000003")
	lineToken    = common.HexToAddress("0xbbb0000000000000000000000000000000000001")
	underlying   = common.HexToAddress("0xbbb0000000000000000000000000000000000002")
)

func newTestAdapter(t *testing.T) (*PositionAdapter, *SimPool, func()) {
	t.Helper()
	db, cleanup := setupTestDB(t)
	client := NewSimPool()
	adapter := NewPositionAdapter(AdapterConfig{
		DB:     db,
		Client: client,
		Owner:  adapterOwner,
	})
	require.NoError(t, adapter.SetAuthorizedCaller(adapterOwner, keeper, true))
	return adapter, client, cleanup
}

func createBackedPosition(t *testing.T, adapter *PositionAdapter) *models.PoolPosition {
	t.Helper()
	position, err := adapter.CreatePoolAndAddLiquidity(
		keeper, lineToken, underlying,
		decimal.NewFromInt(1000), decimal.NewFromInt(1000),
	)
	require.NoError(t, err)
	return position
}

func TestAdapterAuthorization(t *testing.T) {
	adapter, _, cleanup := newTestAdapter(t)
	defer cleanup()

	t.Run("Unauthorized Caller Rejected", func(t *testing.T) {
		_, err := adapter.CreatePoolAndAddLiquidity(
			stranger, lineToken, underlying,
			decimal.NewFromInt(100), decimal.NewFromInt(100),
		)
		assert.ErrorIs(t, err, engine.ErrUnauthorized)
	})

	t.Run("Only Owner Administers Allowlist", func(t *testing.T) {
		err := adapter.SetAuthorizedCaller(keeper, stranger, true)
		assert.ErrorIs(t, err, engine.ErrUnauthorized)
	})

	t.Run("Revocation Takes Effect Immediately", func(t *testing.T) {
		require.NoError(t, adapter.SetAuthorizedCaller(adapterOwner, stranger, true))
		require.NoError(t, adapter.SetAuthorizedCaller(adapterOwner, stranger, false))
		_, err := adapter.CreatePoolAndAddLiquidity(
			stranger, lineToken, underlying,
			decimal.NewFromInt(100), decimal.NewFromInt(100),
		)
		assert.ErrorIs(t, err, engine.ErrUnauthorized)
	})
}

func TestCreatePoolAndAddLiquidity(t *testing.T) {
	adapter, client, cleanup := newTestAdapter(t)
	defer cleanup()

	position := createBackedPosition(t, adapter)

	t.Run("Records Both Positions", func(t *testing.T) {
		assert.True(t, position.Exists)
		assert.NotZero(t, position.FullRangeID)
		assert.NotZero(t, position.ConcentratedID)
		assert.NotEqual(t, position.FullRangeID, position.ConcentratedID)
		assert.Less(t, position.TickLower, position.TickUpper)
	})

	t.Run("Pool Price Readable", func(t *testing.T) {
		price, err := adapter.GetCurrentPoolPrice(common.HexToAddress(position.PoolAddress))
		require.NoError(t, err)
		assert.True(t, price.IsPositive())
	})

	t.Run("Retry Adopts The Existing Position", func(t *testing.T) {
		again, err := adapter.CreatePoolAndAddLiquidity(
			keeper, lineToken, underlying,
			decimal.NewFromInt(10), decimal.NewFromInt(10),
		)
		require.NoError(t, err)
		assert.Equal(t, position.FullRangeID, again.FullRangeID)
		assert.Equal(t, position.ConcentratedID, again.ConcentratedID)
	})

	t.Run("Mint Failure Propagates", func(t *testing.T) {
		other := common.HexToAddress("0xbbb0000000000000000000000000000000000099")
		client.FailNextMint()
		_, err := adapter.CreatePoolAndAddLiquidity(
			keeper, other, underlying,
			decimal.NewFromInt(10), decimal.NewFromInt(10),
		)
		assert.ErrorIs(t, err, engine.ErrMintFailed)

		// The failure left no live position behind.
		recorded, err := adapter.GetPosition(other)
		require.NoError(t, err)
		assert.False(t, recorded.Exists)
	})
}

func TestRebalanceConcentratedPosition(t *testing.T) {
	adapter, client, cleanup := newTestAdapter(t)
	defer cleanup()
	position := createBackedPosition(t, adapter)

	t.Run("Moves Only The Concentrated Position", func(t *testing.T) {
		target := decimal.NewFromFloat(1.05)
		require.NoError(t, adapter.RebalanceConcentratedPosition(keeper, lineToken, target))

		after, err := adapter.GetPosition(lineToken)
		require.NoError(t, err)
		assert.Equal(t, position.FullRangeID, after.FullRangeID)
		assert.NotEqual(t, position.ConcentratedID, after.ConcentratedID)

		wantLower, wantUpper := ConcentratedRange(target, DefaultTickSpacing)
		assert.Equal(t, wantLower, after.TickLower)
		assert.Equal(t, wantUpper, after.TickUpper)

		// Old concentrated position is burned.
		assert.Error(t, client.BurnPosition(position.ConcentratedID))
	})

	t.Run("Records History", func(t *testing.T) {
		// Reaching into the adapter's database through GetPosition only; the
		// history row is checked via a second rebalance returning a new id.
		before, err := adapter.GetPosition(lineToken)
		require.NoError(t, err)
		require.NoError(t, adapter.RebalanceConcentratedPosition(keeper, lineToken, decimal.NewFromFloat(1.1)))
		after, err := adapter.GetPosition(lineToken)
		require.NoError(t, err)
		assert.NotEqual(t, before.ConcentratedID, after.ConcentratedID)
	})

	t.Run("Mint Failure Leaves Position Intact And Retryable", func(t *testing.T) {
		before, err := adapter.GetPosition(lineToken)
		require.NoError(t, err)

		client.FailNextMint()
		err = adapter.RebalanceConcentratedPosition(keeper, lineToken, decimal.NewFromFloat(1.2))
		require.ErrorIs(t, err, engine.ErrMintFailed)

		// The old position was not burned and the record still points at it.
		after, err := adapter.GetPosition(lineToken)
		require.NoError(t, err)
		assert.Equal(t, before.ConcentratedID, after.ConcentratedID)
		assert.Equal(t, before.TickLower, after.TickLower)

		require.NoError(t, adapter.RebalanceConcentratedPosition(keeper, lineToken, decimal.NewFromFloat(1.2)))
		final, err := adapter.GetPosition(lineToken)
		require.NoError(t, err)
		assert.NotEqual(t, before.ConcentratedID, final.ConcentratedID)
	})

	t.Run("Unknown Line Is Invalid State", func(t *testing.T) {
		missing := common.HexToAddress("0xbbb0000000000000000000000000000000000077")
		err := adapter.RebalanceConcentratedPosition(keeper, missing, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, engine.ErrInvalidState)
	})

	t.Run("Unauthorized Caller Rejected", func(t *testing.T) {
		err := adapter.RebalanceConcentratedPosition(stranger, lineToken, decimal.NewFromInt(1))
		assert.ErrorIs(t, err, engine.ErrUnauthorized)
	})
}

func TestCollectFeesAndRemoveLiquidity(t *testing.T) {
	adapter, client, cleanup := newTestAdapter(t)
	defer cleanup()
	position := createBackedPosition(t, adapter)
	pool := common.HexToAddress(position.PoolAddress)

	t.Run("Collects Swap Fees From Both Positions", func(t *testing.T) {
		require.NoError(t, client.Swap(pool, decimal.NewFromInt(50), true))
		require.NoError(t, client.Swap(pool, decimal.NewFromInt(50), false))

		f0, f1, err := adapter.CollectFees(keeper, lineToken, adapterOwner)
		require.NoError(t, err)
		assert.True(t, f0.IsPositive() || f1.IsPositive())
	})

	t.Run("Remove Liquidity Draws From Full Range", func(t *testing.T) {
		require.NoError(t, adapter.RemoveLiquidity(keeper, lineToken, decimal.NewFromInt(100)))

		err := adapter.RemoveLiquidity(keeper, lineToken, decimal.NewFromInt(1_000_000))
		assert.ErrorIs(t, err, engine.ErrInsufficientBalance)
	})
}

func TestGetPositionMissing(t *testing.T) {
	adapter, _, cleanup := newTestAdapter(t)
	defer cleanup()

	position, err := adapter.GetPosition(lineToken)
	require.NoError(t, err)
	assert.False(t, position.Exists)
	assert.Zero(t, position.FullRangeID)
}

func TestAdapterEmergencyWithdraw(t *testing.T) {
	adapter, _, cleanup := newTestAdapter(t)
	defer cleanup()

	t.Run("Owner Only", func(t *testing.T) {
		err := adapter.EmergencyWithdraw(keeper, underlying, decimal.NewFromInt(10))
		assert.ErrorIs(t, err, engine.ErrUnauthorized)
	})

	t.Run("Owner Withdrawal Audited", func(t *testing.T) {
		require.NoError(t, adapter.EmergencyWithdraw(adapterOwner, underlying, decimal.NewFromInt(10)))
	})

	t.Run("Amount Must Be Positive", func(t *testing.T) {
		err := adapter.EmergencyWithdraw(adapterOwner, underlying, decimal.Zero)
		assert.ErrorIs(t, err, engine.ErrInvalidParameters)
	})
}
