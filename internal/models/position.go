package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PoolPosition represents the pool_positions table: the two AMM positions
// backing a credit line. FullRangeID and ConcentratedID are either both zero
// (no position) or both set; Exists mirrors a non-empty pool address.
type PoolPosition struct {
	ID              uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	CreditLineToken string `json:"credit_line_token" gorm:"type:varchar(64);uniqueIndex;not null"`
	PoolAddress     string `json:"pool_address" gorm:"type:varchar(64);not null"`
	FullRangeID     uint64 `json:"full_range_id" gorm:"default:0"`
	ConcentratedID  uint64 `json:"concentrated_id" gorm:"default:0"`
	TickLower       int    `json:"tick_lower" gorm:"default:0"`
	TickUpper       int    `json:"tick_upper" gorm:"default:0"`
	Exists          bool   `json:"exists" gorm:"column:pool_exists;default:false"`

	// Amounts the concentrated position was minted with; reused when the
	// position is re-minted during a rebalance.
	ConcentratedAmount0 decimal.Decimal `json:"concentrated_amount0" gorm:"type:decimal(78,18);default:0"`
	ConcentratedAmount1 decimal.Decimal `json:"concentrated_amount1" gorm:"type:decimal(78,18);default:0"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for PoolPosition
func (PoolPosition) TableName() string {
	return "pool_positions"
}

// AuthorizedCaller represents the authorized_callers table: the adapter's
// capability allowlist. Read fresh on every privileged call, never cached.
type AuthorizedCaller struct {
	ID         uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Address    string    `json:"address" gorm:"type:varchar(64);uniqueIndex;not null"`
	Authorized bool      `json:"authorized" gorm:"default:false"`
	CreatedAt  time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for AuthorizedCaller
func (AuthorizedCaller) TableName() string {
	return "authorized_callers"
}
