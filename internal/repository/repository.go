package repository

import (
	"context"
	"time"

	"github.com/ZkAGI/pawpad-rofl/internal/models"
)

// UserRepository reads trading enrollment. The engine never writes it.
type UserRepository interface {
	ListTradingEnabledUsers(ctx context.Context) ([]models.UserConfig, error)
}

// TradeRepository is the append-only trade history.
type TradeRepository interface {
	AppendTradeRecord(ctx context.Context, item *models.TradeRecord) error
	ListTradeRecords(ctx context.Context, params ListTradeRecordsParams) ([]models.TradeRecord, error)
}

type SignalLogRepository interface {
	InsertSignalLog(ctx context.Context, item *models.SignalLog) error
}

type SystemSettingRepository interface {
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	ListSystemSettings(ctx context.Context, params ListSystemSettingsParams) ([]models.SystemSetting, error)
}

type Repository interface {
	UserRepository
	TradeRepository
	SignalLogRepository
	SystemSettingRepository
}

type ListTradeRecordsParams struct {
	Limit   int
	Offset  int
	UID     *string
	Asset   *string
	Status  *string
	CycleID *string
	Since   *time.Time
	OrderBy string
	Asc     *bool
}

type ListSystemSettingsParams struct {
	Limit   int
	Offset  int
	Prefix  *string
	OrderBy string
	Asc     *bool
}
