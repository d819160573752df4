package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"creditcontrol/internal/models"
)

// DefaultToleranceBps is the price validation tolerance: the pool price may
// deviate from the accrual-implied price by at most 1%.
const DefaultToleranceBps = 100

// LedgerConfig configures a Ledger.
type LedgerConfig struct {
	DB           *gorm.DB
	Positions    PositionManager
	Owner        common.Address // ledger admin, may emergency-withdraw
	Self         common.Address // identity the ledger calls the adapter as
	Publisher    Publisher      // optional
	ToleranceBps int64          // 0 means DefaultToleranceBps
}

// Ledger holds the economic state of live credit lines: balances, interest
// accrual and the price validation gate on transfers.
type Ledger struct {
	db           *gorm.DB
	positions    PositionManager
	owner        common.Address
	self         common.Address
	pub          Publisher
	toleranceBps int64
}

// NewLedger creates a Ledger.
func NewLedger(cfg LedgerConfig) *Ledger {
	tol := cfg.ToleranceBps
	if tol == 0 {
		tol = DefaultToleranceBps
	}
	return &Ledger{
		db:           cfg.DB,
		positions:    cfg.Positions,
		owner:        cfg.Owner,
		self:         cfg.Self,
		pub:          cfg.Publisher,
		toleranceBps: tol,
	}
}

// CreditLineStatus is the inspection view of a live credit line.
type CreditLineStatus struct {
	Line               models.CreditLine   `json:"line"`
	AvailableLiquidity decimal.Decimal     `json:"available_liquidity"`
	ExpectedPrice      decimal.Decimal     `json:"expected_price"`
	Position           models.PoolPosition `json:"position"`
}

func (l *Ledger) loadLine(token common.Address) (*models.CreditLine, error) {
	var line models.CreditLine
	if err := l.db.Where("token_address = ?", token.Hex()).First(&line).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: unknown credit line %s", ErrInvalidState, token.Hex())
		}
		return nil, err
	}
	return &line, nil
}

// expectedPriceAt extrapolates the accrual-implied price to at without
// mutating stored state.
func expectedPriceAt(line *models.CreditLine, at time.Time) decimal.Decimal {
	return AccruedPrice(line.CurrentPrice, line.ApyBps, at.Sub(line.LastAccrualTime))
}

// AccrueInterest advances the stored price by the interest earned since the
// last accrual and rebalances the concentrated position around the new target.
// The stored price only moves after the rebalance succeeds, so a failed
// rebalance leaves the next accrual to cover the same interval again.
func (l *Ledger) AccrueInterest(token common.Address) (decimal.Decimal, error) {
	line, err := l.loadLine(token)
	if err != nil {
		return decimal.Zero, err
	}
	if !line.Finalized {
		return decimal.Zero, fmt.Errorf("%w: credit line %s is not finalized", ErrInvalidState, token.Hex())
	}

	now := time.Now()
	elapsed := now.Sub(line.LastAccrualTime)
	if elapsed <= 0 {
		return line.CurrentPrice, nil
	}
	target := AccruedPrice(line.CurrentPrice, line.ApyBps, elapsed)

	if err := l.positions.RebalanceConcentratedPosition(l.self, token, target); err != nil {
		return decimal.Zero, err
	}

	err = l.db.Model(&models.CreditLine{}).
		Where("token_address = ?", token.Hex()).
		Updates(map[string]interface{}{
			"current_price":     target,
			"last_accrual_time": now,
		}).Error
	if err != nil {
		return decimal.Zero, err
	}

	log.WithFields(log.Fields{
		"token":   token.Hex(),
		"price":   target.String(),
		"elapsed": elapsed.String(),
	}).Info("Accrued interest")
	return target, nil
}

// ValidatePrice reports whether the live pool price is within tolerance of
// the accrual-implied price extrapolated to now. Pure read, mutates nothing.
func (l *Ledger) ValidatePrice(token common.Address) (bool, decimal.Decimal, decimal.Decimal, error) {
	line, err := l.loadLine(token)
	if err != nil {
		return false, decimal.Zero, decimal.Zero, err
	}
	position, err := l.positions.GetPosition(token)
	if err != nil {
		return false, decimal.Zero, decimal.Zero, err
	}
	if !position.Exists {
		return false, decimal.Zero, decimal.Zero, fmt.Errorf("%w: credit line %s has no pool", ErrInvalidState, token.Hex())
	}
	poolPrice, err := l.positions.GetCurrentPoolPrice(common.HexToAddress(position.PoolAddress))
	if err != nil {
		return false, decimal.Zero, decimal.Zero, err
	}
	expected := expectedPriceAt(line, time.Now())
	return WithinTolerance(poolPrice, expected, l.toleranceBps), poolPrice, expected, nil
}

// Transfer moves amount of the tokenized claim from the caller to recipient.
// When price validation is enabled the pool price is checked against the
// accrual-implied price immediately before the balance mutation, inside the
// same transaction; a stale price fails the transfer with ErrStalePrice,
// which is recoverable by accruing interest and retrying.
func (l *Ledger) Transfer(caller, token, recipient common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: transfer amount must be positive", ErrInvalidParameters)
	}
	if recipient == (common.Address{}) {
		return fmt.Errorf("%w: recipient must not be the zero address", ErrInvalidParameters)
	}
	line, err := l.loadLine(token)
	if err != nil {
		return err
	}
	if !line.Finalized {
		return fmt.Errorf("%w: credit line %s is not finalized", ErrInvalidState, token.Hex())
	}

	return l.db.Transaction(func(tx *gorm.DB) error {
		record := models.TransferRecord{
			Token:       token.Hex(),
			FromAddress: caller.Hex(),
			ToAddress:   recipient.Hex(),
			Amount:      amount,
		}

		if line.PriceValidationEnabled {
			ok, poolPrice, expected, err := l.ValidatePrice(token)
			if err != nil {
				return err
			}
			record.PriceChecked = true
			record.PoolPrice = poolPrice
			record.ExpectedPrice = expected
			if !ok {
				return fmt.Errorf("%w: pool price %s deviates from expected %s beyond %d bps",
					ErrStalePrice, poolPrice.String(), expected.String(), l.toleranceBps)
			}
		}

		res := tx.Model(&models.TokenBalance{}).
			Where("token = ? AND holder = ? AND balance >= ?", token.Hex(), caller.Hex(), amount).
			Update("balance", gorm.Expr("balance - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: holder %s has less than %s", ErrInsufficientBalance, caller.Hex(), amount.String())
		}

		if err := creditBalance(tx, token, recipient, amount); err != nil {
			return fmt.Errorf("%w: crediting %s: %v", ErrTransferFailed, recipient.Hex(), err)
		}
		return tx.Create(&record).Error
	})
}

// creditBalance adds amount to recipient's balance, creating the row on first
// receipt.
func creditBalance(tx *gorm.DB, token, recipient common.Address, amount decimal.Decimal) error {
	res := tx.Model(&models.TokenBalance{}).
		Where("token = ? AND holder = ?", token.Hex(), recipient.Hex()).
		Update("balance", gorm.Expr("balance + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return tx.Create(&models.TokenBalance{
			Token:   token.Hex(),
			Holder:  recipient.Hex(),
			Balance: amount,
		}).Error
	}
	return nil
}

// WithdrawCredit draws amount of underlying from the line's available
// liquidity. Only the designated borrower may draw, and available liquidity
// never goes negative; the guard is a conditional update so concurrent draws
// cannot overshoot.
func (l *Ledger) WithdrawCredit(caller, token common.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidParameters)
	}
	line, err := l.loadLine(token)
	if err != nil {
		return err
	}
	if !line.Finalized {
		return fmt.Errorf("%w: credit line %s is not finalized", ErrInvalidState, token.Hex())
	}
	if caller.Hex() != line.Borrower {
		return fmt.Errorf("%w: %s is not the borrower of %s", ErrUnauthorized, caller.Hex(), token.Hex())
	}

	res := l.db.Model(&models.CreditLine{}).
		Where("token_address = ? AND total_provided - total_withdrawn >= ?", token.Hex(), amount).
		Update("total_withdrawn", gorm.Expr("total_withdrawn + ?", amount))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: available liquidity below %s", ErrInsufficientBalance, amount.String())
	}

	log.WithFields(log.Fields{
		"token":    token.Hex(),
		"borrower": caller.Hex(),
		"amount":   amount.String(),
	}).Info("Borrower withdrew credit")
	return nil
}

// GetCreditLineStatus returns the line, its available liquidity, the
// accrual-implied price extrapolated to now and the backing position.
func (l *Ledger) GetCreditLineStatus(token common.Address) (*CreditLineStatus, error) {
	line, err := l.loadLine(token)
	if err != nil {
		return nil, err
	}
	position, err := l.positions.GetPosition(token)
	if err != nil {
		return nil, err
	}
	return &CreditLineStatus{
		Line:               *line,
		AvailableLiquidity: line.AvailableLiquidity(),
		ExpectedPrice:      expectedPriceAt(line, time.Now()),
		Position:           *position,
	}, nil
}

// SetPriceValidation toggles the transfer price gate. Owner only.
func (l *Ledger) SetPriceValidation(caller, token common.Address, enabled bool) error {
	line, err := l.loadLine(token)
	if err != nil {
		return err
	}
	if caller.Hex() != line.Owner {
		return fmt.Errorf("%w: %s is not the owner of %s", ErrUnauthorized, caller.Hex(), token.Hex())
	}
	err = l.db.Model(&models.CreditLine{}).
		Where("token_address = ?", token.Hex()).
		Update("price_validation_enabled", enabled).Error
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"token": token.Hex(), "enabled": enabled}).Info("Price validation toggled")
	return nil
}

// EmergencyWithdraw records an admin withdrawal of asset from the ledger.
// It bypasses normal accounting, so every call is audited and published on
// its own queue.
func (l *Ledger) EmergencyWithdraw(caller, token, asset common.Address, amount decimal.Decimal) error {
	if caller != l.owner {
		return fmt.Errorf("%w: %s is not the ledger owner", ErrUnauthorized, caller.Hex())
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: withdrawal amount must be positive", ErrInvalidParameters)
	}

	withdrawal := models.AdminWithdrawal{
		Source: "ledger",
		Caller: caller.Hex(),
		Token:  token.Hex(),
		Asset:  asset.Hex(),
		Amount: amount,
	}
	if err := l.db.Create(&withdrawal).Error; err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"caller": caller.Hex(),
		"token":  token.Hex(),
		"asset":  asset.Hex(),
		"amount": amount.String(),
	}).Warn("Emergency withdrawal from ledger")

	if l.pub != nil {
		if err := l.pub.Publish(QueueEmergencyAudit, withdrawal); err != nil {
			log.Warnf("Failed to publish emergency audit event: %v", err)
		}
	}
	return nil
}
