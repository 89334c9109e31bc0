package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/concur-gateway/internal/repository"
	"gorm.io/gorm"
)

func createAPITokensTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000001_create_api_tokens",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.APITokenModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_api_tokens_active ON api_tokens (repository_id) WHERE revoked_at IS NULL`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.APITokenModel{})
		},
	}
}
