package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreationStep is the saga phase a creation record has reached. Steps only
// ever advance; a failed phase leaves the record on its previous step.
type CreationStep int

const (
	StepDeployed CreationStep = iota
	StepMinted
	StepPoolCreated
	StepFinalized
)

func (s CreationStep) String() string {
	switch s {
	case StepDeployed:
		return "Deployed"
	case StepMinted:
		return "Minted"
	case StepPoolCreated:
		return "PoolCreated"
	case StepFinalized:
		return "Finalized"
	default:
		return "Unknown"
	}
}

// CreationRecord represents the creation_records table. One row per creation
// saga, keyed by the keccak-derived creation id; retained indefinitely for
// auditability.
type CreationRecord struct {
	ID              uint         `json:"id" gorm:"primaryKey;autoIncrement"`
	CreationID      string       `json:"creation_id" gorm:"type:varchar(66);uniqueIndex;not null"`
	Step            CreationStep `json:"step" gorm:"not null;default:0"`
	Completed       bool         `json:"completed" gorm:"default:false"`
	CreditLineToken string       `json:"credit_line_token" gorm:"type:varchar(64);index;not null"`
	Initiator       string       `json:"initiator" gorm:"type:varchar(64);not null"`

	// Stored parameters, kept verbatim so a stalled saga can be resumed
	// without the initiator re-supplying them.
	Name             string          `json:"name" gorm:"type:varchar(64);not null"`
	Symbol           string          `json:"symbol" gorm:"type:varchar(16);not null"`
	UnderlyingAsset  string          `json:"underlying_asset" gorm:"type:varchar(64);not null"`
	CreditLimit      decimal.Decimal `json:"credit_limit" gorm:"type:decimal(78,18);not null"`
	ApyBps           int64           `json:"apy_bps" gorm:"not null"`
	Borrower         string          `json:"borrower" gorm:"type:varchar(64);not null"`
	InitialLiquidity decimal.Decimal `json:"initial_liquidity" gorm:"type:decimal(78,18);not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for CreationRecord
func (CreationRecord) TableName() string {
	return "creation_records"
}
