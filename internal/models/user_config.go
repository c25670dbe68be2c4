package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// UserConfig is the per-user trading enrollment. The engine only reads it.
type UserConfig struct {
	ID  uint64 `gorm:"primaryKey;autoIncrement"`
	UID string `gorm:"type:varchar(128);not null;uniqueIndex"`

	TradingEnabled     bool            `gorm:"not null;default:false;index"`
	MaxTradeAmountUSDC decimal.Decimal `gorm:"column:max_trade_amount_usdc;type:numeric(30,6);not null;default:100"`

	// JSON array of asset symbols, e.g. ["ETH","SOL"].
	AllowedAssets datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (UserConfig) TableName() string {
	return "user_configs"
}
