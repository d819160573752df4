package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RebalanceRecord represents the rebalance_records table: one row per
// concentrated-position move, linking the burned and re-minted position ids.
type RebalanceRecord struct {
	ID                uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	CreditLineToken   string          `json:"credit_line_token" gorm:"type:varchar(64);index;not null"`
	OldConcentratedID uint64          `json:"old_concentrated_id" gorm:"not null"`
	NewConcentratedID uint64          `json:"new_concentrated_id" gorm:"not null"`
	TargetPrice       decimal.Decimal `json:"target_price" gorm:"type:decimal(78,18);not null"`
	TickLower         int             `json:"tick_lower" gorm:"not null"`
	TickUpper         int             `json:"tick_upper" gorm:"not null"`
	CreatedAt         time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for RebalanceRecord
func (RebalanceRecord) TableName() string {
	return "rebalance_records"
}

// AdminWithdrawal represents the admin_withdrawals table: the audit trail for
// emergency withdrawals. These bypass normal accounting and indicate an
// operational incident, so they are stored apart from ordinary records.
type AdminWithdrawal struct {
	ID        uint            `json:"id" gorm:"primaryKey;autoIncrement"`
	Source    string          `json:"source" gorm:"type:varchar(20);not null"` // "adapter" | "ledger"
	Caller    string          `json:"caller" gorm:"type:varchar(64);not null"`
	Token     string          `json:"token" gorm:"type:varchar(64)"`
	Asset     string          `json:"asset" gorm:"type:varchar(64);not null"`
	Amount    decimal.Decimal `json:"amount" gorm:"type:decimal(78,18);not null"`
	CreatedAt time.Time       `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for AdminWithdrawal
func (AdminWithdrawal) TableName() string {
	return "admin_withdrawals"
}
