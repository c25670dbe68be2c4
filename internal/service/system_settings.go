package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"gorm.io/datatypes"

	"github.com/ZkAGI/pawpad-rofl/internal/models"
	"github.com/ZkAGI/pawpad-rofl/internal/repository"
)

const (
	FeatureAutoTrading  = "feature.auto_trading"
	FeatureSignalLogs   = "feature.signal_logs"
	FeatureAuditLedger  = "feature.audit.ledger"
	FeatureAuditOpsLogs = "feature.audit.ops_logs"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureAutoTrading:  true,
		FeatureSignalLogs:   true,
		FeatureAuditLedger:  true,
		FeatureAuditOpsLogs: true,
	}
}

// SystemSettingsService reads and writes runtime switches. A nil service or
// repository answers every lookup with the caller's fallback.
type SystemSettingsService struct {
	Repo repository.SystemSettingRepository
}

// EnsureDefaultSwitches inserts missing switches. Existing values are left
// alone so an operator's OFF survives restarts.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for key, enabled := range DefaultFeatureSwitches() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(enabled)
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	return s.Repo.UpsertSystemSetting(ctx, &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	})
}

// Switches returns every stored feature switch as key → enabled.
func (s *SystemSettingsService) Switches(ctx context.Context) (map[string]bool, error) {
	out := DefaultFeatureSwitches()
	if s == nil || s.Repo == nil {
		return out, nil
	}
	prefix := "feature."
	items, err := s.Repo.ListSystemSettings(ctx, repository.ListSystemSettingsParams{Prefix: &prefix})
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		var enabled bool
		if err := json.Unmarshal(item.Value, &enabled); err != nil {
			continue
		}
		out[item.Key] = enabled
	}
	return out, nil
}
