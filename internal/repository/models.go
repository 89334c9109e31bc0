package repository

import (
	"time"

	"github.com/kursadbilgin/concur-gateway/internal/domain"
)

// APITokenModel is the persistence model for api_tokens. Only the digest of a
// token is stored.
type APITokenModel struct {
	ID           string     `gorm:"type:uuid;primaryKey"`
	RepositoryID string     `gorm:"type:varchar(255);not null;index"`
	Digest       string     `gorm:"type:char(64);not null;uniqueIndex"`
	CreatedAt    time.Time  `gorm:"not null"`
	RevokedAt    *time.Time `gorm:"column:revoked_at"`
}

func (APITokenModel) TableName() string {
	return "api_tokens"
}

// ChannelConfigModel is the persistence model for channel_configs.
type ChannelConfigModel struct {
	ID           string             `gorm:"type:uuid;primaryKey"`
	RepositoryID string             `gorm:"type:varchar(255);not null;index"`
	Kind         domain.ChannelKind `gorm:"type:varchar(16);not null"`
	EndpointURL  string             `gorm:"type:text;not null"`
	Secret       string             `gorm:"type:text;not null"`
	Enabled      bool               `gorm:"not null"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (ChannelConfigModel) TableName() string {
	return "channel_configs"
}

// DeliveryAttemptModel is the persistence model for delivery_attempts.
type DeliveryAttemptModel struct {
	ID            string                 `gorm:"type:uuid;primaryKey"`
	EventID       string                 `gorm:"type:varchar(255);not null;index:idx_attempts_event_outcome,priority:1"`
	ChannelID     string                 `gorm:"type:varchar(255);not null"`
	ChannelKind   domain.ChannelKind     `gorm:"type:varchar(16);not null"`
	AttemptNumber int                    `gorm:"not null"`
	Outcome       domain.DeliveryOutcome `gorm:"type:varchar(32);not null;index:idx_attempts_event_outcome,priority:2"`
	StatusCode    *int                   `gorm:"type:int"`
	ResponseBody  *string                `gorm:"type:text"`
	Error         *string                `gorm:"type:text"`
	CreatedAt     time.Time
}

func (DeliveryAttemptModel) TableName() string {
	return "delivery_attempts"
}

// ReportArtifactModel is the persistence model for report_artifacts.
type ReportArtifactModel struct {
	ID           string `gorm:"type:uuid;primaryKey"`
	RepositoryID string `gorm:"type:varchar(255);not null;index"`
	SHA256       string `gorm:"column:sha256;type:char(64);not null"`
	SizeBytes    int64  `gorm:"not null"`
	ContentType  string `gorm:"type:varchar(255);not null"`
	Content      []byte `gorm:"type:bytea;not null"`
	CreatedAt    time.Time
}

func (ReportArtifactModel) TableName() string {
	return "report_artifacts"
}

func tokenModelFromDomain(t *domain.APIToken) *APITokenModel {
	if t == nil {
		return nil
	}

	return &APITokenModel{
		ID:           t.ID,
		RepositoryID: t.RepositoryID,
		Digest:       t.Digest,
		CreatedAt:    t.CreatedAt,
		RevokedAt:    t.RevokedAt,
	}
}

func tokenModelToDomain(m *APITokenModel) *domain.APIToken {
	if m == nil {
		return nil
	}

	return &domain.APIToken{
		ID:           m.ID,
		RepositoryID: m.RepositoryID,
		Digest:       m.Digest,
		CreatedAt:    m.CreatedAt,
		RevokedAt:    m.RevokedAt,
	}
}

func channelModelFromDomain(c *domain.ChannelConfig) *ChannelConfigModel {
	if c == nil {
		return nil
	}

	return &ChannelConfigModel{
		ID:           c.ID,
		RepositoryID: c.RepositoryID,
		Kind:         c.Kind,
		EndpointURL:  c.EndpointURL,
		Secret:       c.Secret,
		Enabled:      c.Enabled,
	}
}

func channelModelToDomain(m *ChannelConfigModel) *domain.ChannelConfig {
	if m == nil {
		return nil
	}

	return &domain.ChannelConfig{
		ID:           m.ID,
		RepositoryID: m.RepositoryID,
		Kind:         m.Kind,
		EndpointURL:  m.EndpointURL,
		Secret:       m.Secret,
		Enabled:      m.Enabled,
	}
}

func attemptModelFromDomain(a *domain.DeliveryAttempt) *DeliveryAttemptModel {
	if a == nil {
		return nil
	}

	return &DeliveryAttemptModel{
		ID:            a.ID,
		EventID:       a.EventID,
		ChannelID:     a.ChannelID,
		ChannelKind:   a.ChannelKind,
		AttemptNumber: a.AttemptNumber,
		Outcome:       a.Outcome,
		StatusCode:    a.StatusCode,
		ResponseBody:  a.ResponseBody,
		Error:         a.Error,
		CreatedAt:     a.CreatedAt,
	}
}

func attemptModelToDomain(m *DeliveryAttemptModel) *domain.DeliveryAttempt {
	if m == nil {
		return nil
	}

	return &domain.DeliveryAttempt{
		ID:            m.ID,
		EventID:       m.EventID,
		ChannelID:     m.ChannelID,
		ChannelKind:   m.ChannelKind,
		AttemptNumber: m.AttemptNumber,
		Outcome:       m.Outcome,
		StatusCode:    m.StatusCode,
		ResponseBody:  m.ResponseBody,
		Error:         m.Error,
		CreatedAt:     m.CreatedAt,
	}
}

func artifactModelFromDomain(a *domain.ReportArtifact) *ReportArtifactModel {
	if a == nil {
		return nil
	}

	return &ReportArtifactModel{
		ID:           a.ID,
		RepositoryID: a.RepositoryID,
		SHA256:       a.SHA256,
		SizeBytes:    a.SizeBytes,
		ContentType:  a.ContentType,
		Content:      a.Content,
		CreatedAt:    a.CreatedAt,
	}
}

func artifactModelToDomain(m *ReportArtifactModel) *domain.ReportArtifact {
	if m == nil {
		return nil
	}

	return &domain.ReportArtifact{
		ID:           m.ID,
		RepositoryID: m.RepositoryID,
		SHA256:       m.SHA256,
		SizeBytes:    m.SizeBytes,
		ContentType:  m.ContentType,
		Content:      m.Content,
		CreatedAt:    m.CreatedAt,
	}
}

// AllModels lists every persisted model in creation order.
func AllModels() []any {
	return []any{
		&APITokenModel{},
		&ChannelConfigModel{},
		&DeliveryAttemptModel{},
		&ReportArtifactModel{},
	}
}
