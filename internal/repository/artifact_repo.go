package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"gorm.io/gorm"
)

type ArtifactRepository interface {
	Create(ctx context.Context, a *domain.ReportArtifact) error
}

type GormArtifactRepo struct {
	db *gorm.DB
}

func NewGormArtifactRepo(db *gorm.DB) *GormArtifactRepo {
	return &GormArtifactRepo{db: db}
}

func (r *GormArtifactRepo) Create(ctx context.Context, a *domain.ReportArtifact) error {
	model := artifactModelFromDomain(a)
	if model == nil {
		return domain.ErrValidation
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*a = *artifactModelToDomain(model)
	return nil
}
