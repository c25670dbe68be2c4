package db

import (
	"github.com/ZkAGI/pawpad-rofl/internal/models"
)

// AutoMigrate creates the tables this engine writes. user_configs belongs to
// the wallet service but is migrated too so a fresh database is usable.
func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}
	return db.Gorm.AutoMigrate(
		&models.UserConfig{},
		&models.TradeRecord{},
		&models.SignalLog{},
		&models.SystemSetting{},
	)
}
