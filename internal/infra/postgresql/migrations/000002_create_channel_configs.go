package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/concur-gateway/internal/repository"
	"gorm.io/gorm"
)

func createChannelConfigsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000002_create_channel_configs",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ChannelConfigModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_channel_configs_enabled ON channel_configs (repository_id) WHERE enabled`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ChannelConfigModel{})
		},
	}
}
