package migrations

import (
	"github.com/go-gormigrate/gormigrate/v2"
	"github.com/kursadbilgin/concur-gateway/internal/repository"
	"gorm.io/gorm"
)

func createReportArtifactsTable() *gormigrate.Migration {
	return &gormigrate.Migration{
		ID: "000004_create_report_artifacts",
		Migrate: func(tx *gorm.DB) error {
			if err := tx.AutoMigrate(&repository.ReportArtifactModel{}); err != nil {
				return err
			}
			return execAll(tx, []string{
				`CREATE INDEX IF NOT EXISTS idx_report_artifacts_sha256 ON report_artifacts (repository_id, sha256)`,
			})
		},
		Rollback: func(tx *gorm.DB) error {
			return tx.Migrator().DropTable(&repository.ReportArtifactModel{})
		},
	}
}
