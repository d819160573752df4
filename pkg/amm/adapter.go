package amm

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"creditcontrol/internal/engine"
	"creditcontrol/internal/models"
)

// Liquidity split between the two positions backing a credit line. The
// full-range position is the stability backstop; the concentrated one does
// price discovery and is the only position moved by rebalancing.
var (
	fullRangeShare    = decimal.NewFromFloat(0.8)
	concentratedShare = decimal.NewFromFloat(0.2)
)

// Publisher publishes engine events to a message queue.
type Publisher interface {
	Publish(queueName string, message interface{}) error
}

// AdapterConfig configures a PositionAdapter.
type AdapterConfig struct {
	DB          *gorm.DB
	Client      PoolClient
	Owner       common.Address
	TickSpacing int       // defaults to DefaultTickSpacing
	Publisher   Publisher // optional
	Stream      *PriceHub // optional
}

// PositionAdapter is the only component allowed to create or modify AMM
// positions on behalf of credit lines. A single owner administers the
// authorized-caller allowlist; every state-mutating operation except owner
// administration requires allowlist membership, checked against the database
// on each call.
type PositionAdapter struct {
	db          *gorm.DB
	client      PoolClient
	owner       common.Address
	tickSpacing int
	pub         Publisher
	stream      *PriceHub
}

// NewPositionAdapter creates a PositionAdapter.
func NewPositionAdapter(cfg AdapterConfig) *PositionAdapter {
	spacing := cfg.TickSpacing
	if spacing == 0 {
		spacing = DefaultTickSpacing
	}
	return &PositionAdapter{
		db:          cfg.DB,
		client:      cfg.Client,
		owner:       cfg.Owner,
		tickSpacing: spacing,
		pub:         cfg.Publisher,
		stream:      cfg.Stream,
	}
}

// isAuthorized reads the allowlist fresh; membership is never cached.
func (a *PositionAdapter) isAuthorized(caller common.Address) (bool, error) {
	var entry models.AuthorizedCaller
	err := a.db.Where("address = ?", caller.Hex()).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return entry.Authorized, nil
}

func (a *PositionAdapter) requireAuthorized(caller common.Address) error {
	ok, err := a.isAuthorized(caller)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s is not an authorized caller", engine.ErrUnauthorized, caller.Hex())
	}
	return nil
}

// CreatePoolAndAddLiquidity looks up or creates the pool for the pair and
// mints the full-range and concentrated positions backing the credit line.
// The recorded pool price orientation is underlying per credit-line token.
func (a *PositionAdapter) CreatePoolAndAddLiquidity(caller, token, underlying common.Address, amountToken, amountUnderlying decimal.Decimal) (*models.PoolPosition, error) {
	if err := a.requireAuthorized(caller); err != nil {
		return nil, err
	}
	if !amountToken.IsPositive() || !amountUnderlying.IsPositive() {
		return nil, fmt.Errorf("%w: liquidity amounts must be positive", engine.ErrPoolCreationFailed)
	}

	var existing models.PoolPosition
	err := a.db.Where("credit_line_token = ?", token.Hex()).First(&existing).Error
	if err == nil && existing.Exists {
		// A prior attempt already committed this position (the creation saga
		// can crash between the adapter commit and its own); adopt it so the
		// phase retries idempotently instead of double-minting.
		log.WithFields(log.Fields{
			"token": token.Hex(),
			"pool":  existing.PoolAddress,
		}).Info("Adopted existing position")
		return &existing, nil
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	token0, token1 := SortTokens(token, underlying)
	initialPrice := amountUnderlying.Div(amountToken)

	pool, err := a.client.GetPool(token0, token1, a.tickSpacing)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrPoolCreationFailed, err)
	}
	if pool == (common.Address{}) {
		pool, err = a.client.CreatePool(token0, token1, a.tickSpacing, initialPrice)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", engine.ErrPoolCreationFailed, err)
		}
	}

	frLower, frUpper := FullRange(a.tickSpacing)
	fullRangeID, err := a.client.MintPosition(MintParams{
		Pool:      pool,
		TickLower: frLower,
		TickUpper: frUpper,
		Amount0:   amountToken.Mul(fullRangeShare),
		Amount1:   amountUnderlying.Mul(fullRangeShare),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: full range: %v", engine.ErrMintFailed, err)
	}

	concLower, concUpper := ConcentratedRange(initialPrice, a.tickSpacing)
	concAmount0 := amountToken.Mul(concentratedShare)
	concAmount1 := amountUnderlying.Mul(concentratedShare)
	concentratedID, err := a.client.MintPosition(MintParams{
		Pool:      pool,
		TickLower: concLower,
		TickUpper: concUpper,
		Amount0:   concAmount0,
		Amount1:   concAmount1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: concentrated: %v", engine.ErrMintFailed, err)
	}

	position := models.PoolPosition{
		CreditLineToken:     token.Hex(),
		PoolAddress:         pool.Hex(),
		FullRangeID:         fullRangeID,
		ConcentratedID:      concentratedID,
		TickLower:           concLower,
		TickUpper:           concUpper,
		Exists:              true,
		ConcentratedAmount0: concAmount0,
		ConcentratedAmount1: concAmount1,
	}
	if existing.ID != 0 {
		position.ID = existing.ID
	}
	if err := a.db.Save(&position).Error; err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"token":           token.Hex(),
		"pool":            pool.Hex(),
		"full_range_id":   fullRangeID,
		"concentrated_id": concentratedID,
	}).Info("Created pool and added liquidity")

	a.broadcastPrice(token, pool)
	return &position, nil
}

// RebalanceConcentratedPosition burns the concentrated position and re-mints
// it centered on targetPrice. The full-range position is never touched, so
// the pool keeps liquidity throughout the move.
func (a *PositionAdapter) RebalanceConcentratedPosition(caller, token common.Address, targetPrice decimal.Decimal) error {
	if err := a.requireAuthorized(caller); err != nil {
		return err
	}
	if !targetPrice.IsPositive() {
		return fmt.Errorf("%w: non-positive target price %s", engine.ErrMintFailed, targetPrice)
	}

	var position models.PoolPosition
	if err := a.db.Where("credit_line_token = ? AND pool_exists = true", token.Hex()).First(&position).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: no position for %s", engine.ErrInvalidState, token.Hex())
		}
		return err
	}

	lower, upper := ConcentratedRange(targetPrice, a.tickSpacing)
	pool := common.HexToAddress(position.PoolAddress)

	// Mint the replacement before burning the old position: a failed mint
	// then leaves the existing position and its record untouched, so the
	// rebalance stays retryable.
	newID, err := a.client.MintPosition(MintParams{
		Pool:      pool,
		TickLower: lower,
		TickUpper: upper,
		Amount0:   position.ConcentratedAmount0,
		Amount1:   position.ConcentratedAmount1,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", engine.ErrMintFailed, err)
	}
	if err := a.client.BurnPosition(position.ConcentratedID); err != nil {
		// Undo the mint so the pool is not left with two concentrated
		// positions for the same line.
		if rollbackErr := a.client.BurnPosition(newID); rollbackErr != nil {
			log.Warnf("Failed to roll back replacement position %d: %v", newID, rollbackErr)
		}
		return fmt.Errorf("%w: burn: %v", engine.ErrMintFailed, err)
	}

	oldID := position.ConcentratedID
	err = a.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PoolPosition{}).
			Where("id = ?", position.ID).
			Updates(map[string]interface{}{
				"concentrated_id": newID,
				"tick_lower":      lower,
				"tick_upper":      upper,
			}).Error; err != nil {
			return err
		}
		return tx.Create(&models.RebalanceRecord{
			CreditLineToken:   token.Hex(),
			OldConcentratedID: oldID,
			NewConcentratedID: newID,
			TargetPrice:       targetPrice,
			TickLower:         lower,
			TickUpper:         upper,
		}).Error
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"token":        token.Hex(),
		"old_id":       oldID,
		"new_id":       newID,
		"target_price": targetPrice.String(),
	}).Info("Rebalanced concentrated position")

	if a.pub != nil {
		if err := a.pub.Publish(engine.QueueRebalanceEvents, map[string]interface{}{
			"token":        token.Hex(),
			"target_price": targetPrice.String(),
			"old_id":       oldID,
			"new_id":       newID,
		}); err != nil {
			log.Warnf("Failed to publish rebalance event: %v", err)
		}
	}
	a.broadcastPrice(token, pool)
	return nil
}

// RemoveLiquidity withdraws amount from the full-range position, which holds
// the withdrawable principal.
func (a *PositionAdapter) RemoveLiquidity(caller, token common.Address, amount decimal.Decimal) error {
	if err := a.requireAuthorized(caller); err != nil {
		return err
	}
	position, err := a.loadPosition(token)
	if err != nil {
		return err
	}
	if err := a.client.RemoveLiquidity(position.FullRangeID, amount); err != nil {
		return fmt.Errorf("%w: remove liquidity: %v", engine.ErrInsufficientBalance, err)
	}
	log.WithFields(log.Fields{"token": token.Hex(), "amount": amount.String()}).Info("Removed liquidity")
	return nil
}

// CollectFees collects accrued fees from both positions to recipient and
// returns the combined amounts per side.
func (a *PositionAdapter) CollectFees(caller, token, recipient common.Address) (decimal.Decimal, decimal.Decimal, error) {
	if err := a.requireAuthorized(caller); err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	position, err := a.loadPosition(token)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	fr0, fr1, err := a.client.CollectFees(position.FullRangeID, recipient)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	c0, c1, err := a.client.CollectFees(position.ConcentratedID, recipient)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	total0 := fr0.Add(c0)
	total1 := fr1.Add(c1)
	log.WithFields(log.Fields{
		"token":     token.Hex(),
		"recipient": recipient.Hex(),
		"amount0":   total0.String(),
		"amount1":   total1.String(),
	}).Info("Collected fees")
	return total0, total1, nil
}

// GetPosition returns the recorded position for a credit line. A missing row
// is not an error; it returns a zero-value position with Exists false.
func (a *PositionAdapter) GetPosition(token common.Address) (*models.PoolPosition, error) {
	var position models.PoolPosition
	err := a.db.Where("credit_line_token = ?", token.Hex()).First(&position).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.PoolPosition{CreditLineToken: token.Hex()}, nil
	}
	if err != nil {
		return nil, err
	}
	return &position, nil
}

// GetCurrentPoolPrice reads the pool's current price.
func (a *PositionAdapter) GetCurrentPoolPrice(pool common.Address) (decimal.Decimal, error) {
	price, _, err := a.client.ReadPrice(pool)
	return price, err
}

// SetAuthorizedCaller grants or revokes allowlist membership. Owner only.
func (a *PositionAdapter) SetAuthorizedCaller(caller, addr common.Address, authorized bool) error {
	if caller != a.owner {
		return fmt.Errorf("%w: only owner may administer the allowlist", engine.ErrUnauthorized)
	}

	var entry models.AuthorizedCaller
	err := a.db.Where("address = ?", addr.Hex()).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		entry = models.AuthorizedCaller{Address: addr.Hex(), Authorized: authorized}
		err = a.db.Create(&entry).Error
	} else if err == nil {
		err = a.db.Model(&entry).Update("authorized", authorized).Error
	}
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"address": addr.Hex(), "authorized": authorized}).Info("Updated authorized caller")
	return nil
}

// EmergencyWithdraw recovers a stranded balance outside normal accounting.
// Owner only; recorded on the admin audit trail and published on the
// emergency queue so it stays distinguishable from ordinary operations.
func (a *PositionAdapter) EmergencyWithdraw(caller, asset common.Address, amount decimal.Decimal) error {
	if caller != a.owner {
		return fmt.Errorf("%w: only owner may emergency withdraw", engine.ErrUnauthorized)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", engine.ErrInvalidParameters)
	}

	record := models.AdminWithdrawal{
		Source: "adapter",
		Caller: caller.Hex(),
		Asset:  asset.Hex(),
		Amount: amount,
	}
	if err := a.db.Create(&record).Error; err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"source": "adapter",
		"caller": caller.Hex(),
		"asset":  asset.Hex(),
		"amount": amount.String(),
	}).Warn("Emergency withdrawal executed")

	if a.pub != nil {
		if err := a.pub.Publish(engine.QueueEmergencyAudit, map[string]interface{}{
			"source": "adapter",
			"caller": caller.Hex(),
			"asset":  asset.Hex(),
			"amount": amount.String(),
			"at":     time.Now().Unix(),
		}); err != nil {
			log.Warnf("Failed to publish emergency audit event: %v", err)
		}
	}
	return nil
}

func (a *PositionAdapter) loadPosition(token common.Address) (*models.PoolPosition, error) {
	var position models.PoolPosition
	if err := a.db.Where("credit_line_token = ? AND pool_exists = true", token.Hex()).First(&position).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no position for %s", engine.ErrInvalidState, token.Hex())
		}
		return nil, err
	}
	return &position, nil
}

func (a *PositionAdapter) broadcastPrice(token, pool common.Address) {
	if a.stream == nil {
		return
	}
	price, tick, err := a.client.ReadPrice(pool)
	if err != nil {
		log.Debugf("Skipping price broadcast for %s: %v", pool.Hex(), err)
		return
	}
	a.stream.Broadcast(PriceUpdate{
		Token: token.Hex(),
		Pool:  pool.Hex(),
		Price: price.String(),
		Tick:  tick,
		At:    time.Now().Unix(),
	})
}
