package gormrepository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/ZkAGI/pawpad-rofl/internal/models"
	"github.com/ZkAGI/pawpad-rofl/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

var _ repository.Repository = (*Store)(nil)

func (s *Store) ListTradingEnabledUsers(ctx context.Context) ([]models.UserConfig, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.UserConfig
	err := s.db.WithContext(ctx).
		Model(&models.UserConfig{}).
		Where("trading_enabled = ?", true).
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) AppendTradeRecord(ctx context.Context, item *models.TradeRecord) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	// Rows are never updated; a fresh insert per attempt.
	item.ID = 0
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) ListTradeRecords(ctx context.Context, params repository.ListTradeRecordsParams) ([]models.TradeRecord, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.TradeRecord{})
	if v := trimmed(params.UID); v != "" {
		query = query.Where("uid = ?", v)
	}
	if v := trimmed(params.Asset); v != "" {
		query = query.Where("asset = ?", strings.ToUpper(v))
	}
	if v := trimmed(params.Status); v != "" {
		query = query.Where("status = ?", strings.ToLower(v))
	}
	if v := trimmed(params.CycleID); v != "" {
		query = query.Where("cycle_id = ?", v)
	}
	if params.Since != nil {
		query = query.Where("timestamp >= ?", params.Since.UTC())
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "timestamp", tradeRecordColumns)
	var items []models.TradeRecord
	if err := query.Limit(normalizeLimit(params.Limit, 100)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) InsertSignalLog(ctx context.Context, item *models.SignalLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Key = strings.TrimSpace(item.Key)
	if item.Key == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"value",
			"description",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).Model(&models.SystemSetting{}).Where("key = ?", key).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListSystemSettings(ctx context.Context, params repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if v := trimmed(params.Prefix); v != "" {
		query = query.Where("key LIKE ?", v+"%")
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "key", settingColumns)
	var items []models.SystemSetting
	if err := query.Limit(normalizeLimit(params.Limit, 500)).Offset(normalizeOffset(params.Offset)).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

var (
	tradeRecordColumns = map[string]struct{}{
		"timestamp": {}, "id": {}, "uid": {}, "asset": {}, "status": {}, "cycle_id": {},
	}
	settingColumns = map[string]struct{}{
		"key": {}, "updated_at": {}, "id": {},
	}
)

// applyOrder only accepts whitelisted columns; anything else sorts by fallback.
func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string, allowed map[string]struct{}) *gorm.DB {
	column := strings.ToLower(strings.TrimSpace(orderBy))
	if _, ok := allowed[column]; !ok {
		column = fallback
	}
	return query.Order(clause.OrderByColumn{
		Column: clause.Column{Name: column},
		Desc:   asc == nil || !*asc,
	})
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}
