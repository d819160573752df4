package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TokenBalance represents the token_balances table: per-holder balances of a
// credit line's tokenized claim.
type TokenBalance struct {
	ID        uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	Token     string          `json:"token" gorm:"type:varchar(64);not null;uniqueIndex:idx_token_holder"`
	Holder    string          `json:"holder" gorm:"type:varchar(64);not null;uniqueIndex:idx_token_holder"`
	Balance   decimal.Decimal `json:"balance" gorm:"type:decimal(78,18);default:0"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for TokenBalance
func (TokenBalance) TableName() string {
	return "token_balances"
}

// TokenAllowance represents the token_allowances table: spend approvals on a
// tokenized claim (the saga grants one to the position adapter at step 2).
type TokenAllowance struct {
	ID        uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	Token     string          `json:"token" gorm:"type:varchar(64);not null;uniqueIndex:idx_token_owner_spender"`
	Owner     string          `json:"owner" gorm:"type:varchar(64);not null;uniqueIndex:idx_token_owner_spender"`
	Spender   string          `json:"spender" gorm:"type:varchar(64);not null;uniqueIndex:idx_token_owner_spender"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(78,18);default:0"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time       `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for TokenAllowance
func (TokenAllowance) TableName() string {
	return "token_allowances"
}

// TransferRecord represents the transfer_records table. PriceChecked marks
// transfers that went through the validation gate; the observed pool and
// expected prices are kept for audit.
type TransferRecord struct {
	ID            uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	Token         string          `json:"token" gorm:"type:varchar(64);index;not null"`
	FromAddress   string          `json:"from_address" gorm:"type:varchar(64);not null"`
	ToAddress     string          `json:"to_address" gorm:"type:varchar(64);not null"`
	Amount        decimal.Decimal `json:"amount" gorm:"type:decimal(78,18);not null"`
	PriceChecked  bool            `json:"price_checked" gorm:"default:false"`
	PoolPrice     decimal.Decimal `json:"pool_price" gorm:"type:decimal(78,18);default:0"`
	ExpectedPrice decimal.Decimal `json:"expected_price" gorm:"type:decimal(78,18);default:0"`
	CreatedAt     time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for TransferRecord
func (TransferRecord) TableName() string {
	return "transfer_records"
}
