package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// TradeRecord is one row of the append-only trade history.
type TradeRecord struct {
	ID      uint64 `gorm:"primaryKey;autoIncrement"`
	CycleID string `gorm:"type:varchar(80);index"`

	UID    string `gorm:"type:varchar(128);not null;index"`
	Chain  string `gorm:"type:varchar(20);not null"`
	Asset  string `gorm:"type:varchar(10);not null;index"`
	Action string `gorm:"type:varchar(10);not null"`

	AmountIn string `gorm:"type:varchar(80);not null"`
	TokenIn  string `gorm:"type:varchar(10);not null"`

	SignalPrice  decimal.Decimal  `gorm:"type:numeric(30,10);not null"`
	QuotedPrice  *decimal.Decimal `gorm:"type:numeric(30,10)"`
	DeviationPct *decimal.Decimal `gorm:"type:numeric(20,10)"`

	SignalScore      *float64 `gorm:"type:double precision"`
	SignalConfidence *float64 `gorm:"type:double precision"`

	// TxHash is the confirmed hash on success and the literal "failed" otherwise.
	TxHash          string  `gorm:"type:varchar(128);not null;index"`
	SubmittedTxHash *string `gorm:"type:varchar(128)"`
	Status          string  `gorm:"type:varchar(20);not null;index"`
	FailureReason   *string `gorm:"type:varchar(50)"`

	Meta datatypes.JSON `gorm:"type:jsonb"`

	Timestamp time.Time `gorm:"type:timestamptz;not null;index"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
}

func (TradeRecord) TableName() string {
	return "trade_history"
}
