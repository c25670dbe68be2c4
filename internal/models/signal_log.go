package models

import (
	"time"

	"gorm.io/datatypes"
)

// SignalLog keeps each raw signal payload as fetched from the provider.
type SignalLog struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement"`
	Asset     string         `gorm:"type:varchar(10);not null;index"`
	Payload   datatypes.JSON `gorm:"type:jsonb;not null"`
	Timestamp time.Time      `gorm:"type:timestamptz;not null;index"`
}

func (SignalLog) TableName() string {
	return "signal_logs"
}
