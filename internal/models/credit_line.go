package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditLine represents the credit_lines table. One row per tokenized credit
// line; the row is created by the saga at step 1 and becomes immutable in its
// parameter columns once the line is finalized.
type CreditLine struct {
	ID               uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	TokenAddress     string          `json:"token_address" gorm:"type:varchar(64);uniqueIndex;not null"`
	Name             string          `json:"name" gorm:"type:varchar(64);not null"`
	Symbol           string          `json:"symbol" gorm:"type:varchar(16);not null"`
	UnderlyingAsset  string          `json:"underlying_asset" gorm:"type:varchar(64);not null"`
	CreditLimit      decimal.Decimal `json:"credit_limit" gorm:"type:decimal(78,18);not null"`
	ApyBps           int64           `json:"apy_bps" gorm:"not null"`
	Borrower         string          `json:"borrower" gorm:"type:varchar(64);not null"`
	InitialLiquidity decimal.Decimal `json:"initial_liquidity" gorm:"type:decimal(78,18);not null"`
	Owner            string          `json:"owner" gorm:"type:varchar(64);not null"`

	// Economic state. CurrentPrice is the accrual-implied price in underlying
	// per token, advanced on every accrual.
	CurrentPrice           decimal.Decimal `json:"current_price" gorm:"type:decimal(78,18);default:1"`
	LastAccrualTime        time.Time       `json:"last_accrual_time"`
	PriceValidationEnabled bool            `json:"price_validation_enabled" gorm:"default:true"`
	TotalProvided          decimal.Decimal `json:"total_provided" gorm:"type:decimal(78,18);default:0"`
	TotalWithdrawn         decimal.Decimal `json:"total_withdrawn" gorm:"type:decimal(78,18);default:0"`
	TotalSupply            decimal.Decimal `json:"total_supply" gorm:"type:decimal(78,18);default:0"`
	Finalized              bool            `json:"finalized" gorm:"default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for CreditLine
func (CreditLine) TableName() string {
	return "credit_lines"
}

// AvailableLiquidity is always TotalProvided - TotalWithdrawn; withdrawals are
// guarded so it never goes negative.
func (c *CreditLine) AvailableLiquidity() decimal.Decimal {
	return c.TotalProvided.Sub(c.TotalWithdrawn)
}
