package gormrepository

import (
	"context"
	"testing"

	"github.com/ZkAGI/pawpad-rofl/internal/models"
	"github.com/ZkAGI/pawpad-rofl/internal/repository"
)

func TestNilStoreIsInert(t *testing.T) {
	var s *Store
	ctx := context.Background()
	users, err := s.ListTradingEnabledUsers(ctx)
	if err != nil || users != nil {
		t.Fatalf("ListTradingEnabledUsers=%v,%v want nil,nil", users, err)
	}
	if err := s.AppendTradeRecord(ctx, &models.TradeRecord{}); err != nil {
		t.Fatalf("AppendTradeRecord err=%v", err)
	}
	item, err := s.GetSystemSettingByKey(ctx, "feature.auto_trading")
	if err != nil || item != nil {
		t.Fatalf("GetSystemSettingByKey=%v,%v want nil,nil", item, err)
	}
	if _, err := s.ListTradeRecords(ctx, repository.ListTradeRecordsParams{}); err != nil {
		t.Fatalf("ListTradeRecords err=%v", err)
	}
}

func TestNormalizeLimit(t *testing.T) {
	if got := normalizeLimit(0, 100); got != 100 {
		t.Fatalf("normalizeLimit(0)=%d want=100", got)
	}
	if got := normalizeLimit(9999, 100); got != 500 {
		t.Fatalf("normalizeLimit(9999)=%d want=500", got)
	}
	if got := normalizeOffset(-3); got != 0 {
		t.Fatalf("normalizeOffset(-3)=%d want=0", got)
	}
}
