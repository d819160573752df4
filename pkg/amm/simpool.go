package amm

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

// SimPool is an in-memory PoolClient: a deterministic concentrated-liquidity
// pool substrate for development and tests. Pools hold a current price/tick
// and a set of positions; minting a position narrower than the full range
// snaps the pool price to the range midpoint, since the concentrated position
// dominates the full-range backstop.
type SimPool struct {
	mu        sync.Mutex
	pools     map[common.Address]*simPoolState
	positions map[uint64]*simPosition
	nextID    uint64
	feeRate   decimal.Decimal

	failNextMint bool
}

type simPoolState struct {
	token0      common.Address
	token1      common.Address
	tickSpacing int
	price       decimal.Decimal
	tick        int
}

type simPosition struct {
	pool      common.Address
	tickLower int
	tickUpper int
	amount0   decimal.Decimal
	amount1   decimal.Decimal
	fees0     decimal.Decimal
	fees1     decimal.Decimal
	burned    bool
}

// NewSimPool creates an empty simulated AMM with a 0.3% swap fee.
func NewSimPool() *SimPool {
	return &SimPool{
		pools:     make(map[common.Address]*simPoolState),
		positions: make(map[uint64]*simPosition),
		feeRate:   decimal.NewFromFloat(0.003),
	}
}

// poolAddress derives a deterministic pool address for a sorted pair.
func poolAddress(token0, token1 common.Address, tickSpacing int) common.Address {
	spacing := make([]byte, 8)
	binary.BigEndian.PutUint64(spacing, uint64(tickSpacing))
	h := crypto.Keccak256(token0.Bytes(), token1.Bytes(), spacing)
	return common.BytesToAddress(h[12:])
}

func (s *SimPool) GetPool(token0, token1 common.Address, tickSpacing int) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	addr := poolAddress(token0, token1, tickSpacing)
	if _, ok := s.pools[addr]; !ok {
		return common.Address{}, nil
	}
	return addr, nil
}

func (s *SimPool) CreatePool(token0, token1 common.Address, tickSpacing int, initialPrice decimal.Decimal) (common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token0 == token1 {
		return common.Address{}, fmt.Errorf("identical tokens %s", token0.Hex())
	}
	if !initialPrice.IsPositive() {
		return common.Address{}, fmt.Errorf("non-positive initial price %s", initialPrice)
	}
	addr := poolAddress(token0, token1, tickSpacing)
	if _, ok := s.pools[addr]; ok {
		return common.Address{}, fmt.Errorf("pool %s already exists", addr.Hex())
	}
	s.pools[addr] = &simPoolState{
		token0:      token0,
		token1:      token1,
		tickSpacing: tickSpacing,
		price:       initialPrice,
		tick:        PriceToTick(initialPrice),
	}
	return addr, nil
}

func (s *SimPool) MintPosition(params MintParams) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNextMint {
		s.failNextMint = false
		return 0, fmt.Errorf("mint rejected by pool")
	}
	pool, ok := s.pools[params.Pool]
	if !ok {
		return 0, fmt.Errorf("unknown pool %s", params.Pool.Hex())
	}
	if params.TickLower >= params.TickUpper {
		return 0, fmt.Errorf("invalid tick range [%d, %d)", params.TickLower, params.TickUpper)
	}
	if params.TickLower%pool.tickSpacing != 0 || params.TickUpper%pool.tickSpacing != 0 {
		return 0, fmt.Errorf("ticks not aligned to spacing %d", pool.tickSpacing)
	}
	if params.Amount0.IsNegative() || params.Amount1.IsNegative() || (params.Amount0.IsZero() && params.Amount1.IsZero()) {
		return 0, fmt.Errorf("empty position")
	}

	s.nextID++
	id := s.nextID
	s.positions[id] = &simPosition{
		pool:      params.Pool,
		tickLower: params.TickLower,
		tickUpper: params.TickUpper,
		amount0:   params.Amount0,
		amount1:   params.Amount1,
		fees0:     decimal.Zero,
		fees1:     decimal.Zero,
	}

	// A concentrated position pulls the pool price to its center.
	minFull, maxFull := FullRange(pool.tickSpacing)
	if params.TickLower > minFull || params.TickUpper < maxFull {
		pool.price = RangeMidPrice(params.TickLower, params.TickUpper)
		pool.tick = PriceToTick(pool.price)
	}
	return id, nil
}

func (s *SimPool) BurnPosition(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[id]
	if !ok || pos.burned {
		return fmt.Errorf("unknown or burned position %d", id)
	}
	pos.burned = true
	return nil
}

func (s *SimPool) ReadPrice(pool common.Address) (decimal.Decimal, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[pool]
	if !ok {
		return decimal.Zero, 0, fmt.Errorf("unknown pool %s", pool.Hex())
	}
	return p.price, p.tick, nil
}

func (s *SimPool) RemoveLiquidity(id uint64, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[id]
	if !ok || pos.burned {
		return fmt.Errorf("unknown or burned position %d", id)
	}
	total := pos.amount0.Add(pos.amount1)
	if amount.IsNegative() || amount.GreaterThan(total) {
		return fmt.Errorf("remove amount %s exceeds position size %s", amount, total)
	}
	// Withdraw proportionally from both sides.
	if total.IsZero() {
		return nil
	}
	share := amount.Div(total)
	pos.amount0 = pos.amount0.Sub(pos.amount0.Mul(share))
	pos.amount1 = pos.amount1.Sub(pos.amount1.Mul(share))
	return nil
}

func (s *SimPool) CollectFees(id uint64, recipient common.Address) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, ok := s.positions[id]
	if !ok {
		return decimal.Zero, decimal.Zero, fmt.Errorf("unknown position %d", id)
	}
	f0, f1 := pos.fees0, pos.fees1
	pos.fees0 = decimal.Zero
	pos.fees1 = decimal.Zero
	return f0, f1, nil
}

// Swap simulates a trade against the pool. zeroForOne sells token0 for
// token1, pushing the price down; the fee accrues to the in-range position
// with the narrowest range (the concentrated one, when it covers the tick).
func (s *SimPool) Swap(pool common.Address, amountIn decimal.Decimal, zeroForOne bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[pool]
	if !ok {
		return fmt.Errorf("unknown pool %s", pool.Hex())
	}
	if !amountIn.IsPositive() {
		return fmt.Errorf("non-positive swap amount %s", amountIn)
	}

	fee := amountIn.Mul(s.feeRate)
	net := amountIn.Sub(fee)

	depth := s.poolDepthLocked(pool, p)
	if depth.IsZero() {
		return fmt.Errorf("pool %s has no liquidity", pool.Hex())
	}
	impact := net.Div(net.Add(depth))
	if zeroForOne {
		p.price = p.price.Mul(decimal.NewFromInt(1).Sub(impact))
	} else {
		p.price = p.price.Mul(decimal.NewFromInt(1).Add(impact))
	}
	p.tick = PriceToTick(p.price)

	if target := s.activePositionLocked(pool, p.tick); target != nil {
		if zeroForOne {
			target.fees0 = target.fees0.Add(fee)
		} else {
			target.fees1 = target.fees1.Add(fee)
		}
	}
	return nil
}

// SetPrice overrides a pool's price directly. Simulation control used to
// model external trading moving the market away from the accrual curve.
func (s *SimPool) SetPrice(pool common.Address, price decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pools[pool]
	if !ok {
		return fmt.Errorf("unknown pool %s", pool.Hex())
	}
	if !price.IsPositive() {
		return fmt.Errorf("non-positive price %s", price)
	}
	p.price = price
	p.tick = PriceToTick(price)
	return nil
}

// FailNextMint makes the next MintPosition call fail. Simulation control for
// exercising mint-failure handling.
func (s *SimPool) FailNextMint() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextMint = true
}

func (s *SimPool) poolDepthLocked(pool common.Address, state *simPoolState) decimal.Decimal {
	depth := decimal.Zero
	for _, pos := range s.positions {
		if pos.pool != pool || pos.burned {
			continue
		}
		depth = depth.Add(pos.amount0.Mul(state.price)).Add(pos.amount1)
	}
	return depth
}

func (s *SimPool) activePositionLocked(pool common.Address, tick int) *simPosition {
	var best *simPosition
	bestWidth := 0
	for _, pos := range s.positions {
		if pos.pool != pool || pos.burned {
			continue
		}
		if tick < pos.tickLower || tick >= pos.tickUpper {
			continue
		}
		width := pos.tickUpper - pos.tickLower
		if best == nil || width < bestWidth {
			best = pos
			bestWidth = width
		}
	}
	return best
}
