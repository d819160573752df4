package amm

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// MintParams describes a liquidity position to mint in a pool.
type MintParams struct {
	Pool      common.Address
	TickLower int
	TickUpper int
	Amount0   decimal.Decimal
	Amount1   decimal.Decimal
}

// PoolClient is the engine's view of the external AMM: pool lookup/creation,
// position mint/burn and price reads. All calls are fallible remote
// operations; the adapter maps their failures onto the engine's error
// taxonomy.
type PoolClient interface {
	// GetPool returns the pool for a sorted pair, or the zero address when no
	// pool exists.
	GetPool(token0, token1 common.Address, tickSpacing int) (common.Address, error)
	// CreatePool creates a pool for a sorted pair at an initial price
	// (token1 per token0).
	CreatePool(token0, token1 common.Address, tickSpacing int, initialPrice decimal.Decimal) (common.Address, error)
	// MintPosition mints a liquidity position and returns its id.
	MintPosition(params MintParams) (uint64, error)
	// BurnPosition burns a position, releasing its liquidity back to the
	// position owner.
	BurnPosition(id uint64) error
	// ReadPrice returns the pool's current price (token1 per token0) and tick.
	ReadPrice(pool common.Address) (decimal.Decimal, int, error)
	// RemoveLiquidity withdraws part of a position's liquidity.
	RemoveLiquidity(id uint64, amount decimal.Decimal) error
	// CollectFees collects accrued fees to a recipient, returning the two
	// collected amounts.
	CollectFees(id uint64, recipient common.Address) (decimal.Decimal, decimal.Decimal, error)
}
