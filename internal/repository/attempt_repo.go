package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"gorm.io/gorm"
)

type AttemptRepository interface {
	Create(ctx context.Context, a *domain.DeliveryAttempt) error
	SentChannelIDs(ctx context.Context, eventID string) (map[string]struct{}, error)
}

type GormAttemptRepo struct {
	db *gorm.DB
}

func NewGormAttemptRepo(db *gorm.DB) *GormAttemptRepo {
	return &GormAttemptRepo{db: db}
}

func (r *GormAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	model := attemptModelFromDomain(a)
	if model == nil {
		return domain.ErrValidation
	}
	if model.ID == "" {
		model.ID = uuid.NewString()
	}

	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	*a = *attemptModelToDomain(model)
	return nil
}

// SentChannelIDs returns the channels that already delivered eventID.
func (r *GormAttemptRepo) SentChannelIDs(ctx context.Context, eventID string) (map[string]struct{}, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&DeliveryAttemptModel{}).
		Where("event_id = ? AND outcome = ?", eventID, domain.OutcomeSent).
		Distinct().
		Pluck("channel_id", &ids).Error
	if err != nil {
		return nil, err
	}

	sent := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		sent[id] = struct{}{}
	}
	return sent, nil
}
