package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"gorm.io/gorm"
)

type ChannelConfigRepository interface {
	Create(ctx context.Context, c *domain.ChannelConfig) error
	GetByID(ctx context.Context, id string) (*domain.ChannelConfig, error)
	ListByRepository(ctx context.Context, repositoryID string) ([]domain.ChannelConfig, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
}

type GormChannelConfigRepo struct {
	db *gorm.DB
}

func NewGormChannelConfigRepo(db *gorm.DB) *GormChannelConfigRepo {
	return &GormChannelConfigRepo{db: db}
}

func (r *GormChannelConfigRepo) Create(ctx context.Context, c *domain.ChannelConfig) error {
	model := channelModelFromDomain(c)
	if model == nil {
		return domain.ErrValidation
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrConflict
		}
		return err
	}
	*c = *channelModelToDomain(model)
	return nil
}

func (r *GormChannelConfigRepo) GetByID(ctx context.Context, id string) (*domain.ChannelConfig, error) {
	var model ChannelConfigModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return channelModelToDomain(&model), nil
}

// ListByRepository returns every channel of a repository, enabled or not,
// oldest first.
func (r *GormChannelConfigRepo) ListByRepository(ctx context.Context, repositoryID string) ([]domain.ChannelConfig, error) {
	var models []ChannelConfigModel
	err := r.db.WithContext(ctx).
		Where("repository_id = ?", repositoryID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	configs := make([]domain.ChannelConfig, 0, len(models))
	for i := range models {
		configs = append(configs, *channelModelToDomain(&models[i]))
	}
	return configs, nil
}

func (r *GormChannelConfigRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	result := r.db.WithContext(ctx).
		Model(&ChannelConfigModel{}).
		Where("id = ?", id).
		Update("enabled", enabled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
