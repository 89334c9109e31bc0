package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"gorm.io/gorm"
)

type TokenRepository interface {
	Create(ctx context.Context, t *domain.APIToken) error
	GetByDigest(ctx context.Context, digest string) (*domain.APIToken, error)
	Revoke(ctx context.Context, digest string, at time.Time) error
}

type GormTokenRepo struct {
	db *gorm.DB
}

func NewGormTokenRepo(db *gorm.DB) *GormTokenRepo {
	return &GormTokenRepo{db: db}
}

func (r *GormTokenRepo) Create(ctx context.Context, t *domain.APIToken) error {
	model := tokenModelFromDomain(t)
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
	*t = *tokenModelToDomain(model)
	return nil
}

func (r *GormTokenRepo) GetByDigest(ctx context.Context, digest string) (*domain.APIToken, error) {
	var model APITokenModel
	err := r.db.WithContext(ctx).First(&model, "digest = ?", digest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return tokenModelToDomain(&model), nil
}

// Revoke marks the token as revoked. Revoking an already revoked token is a
// no-op; an unknown digest yields domain.ErrNotFound.
func (r *GormTokenRepo) Revoke(ctx context.Context, digest string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&APITokenModel{}).
		Where("digest = ? AND revoked_at IS NULL", digest).
		Update("revoked_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		return nil
	}

	_, err := r.GetByDigest(ctx, digest)
	return err
}
