package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(AllModels()...); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}

	return db
}

func TestGormTokenRepoLifecycle(t *testing.T) {
	t.Parallel()

	repo := NewGormTokenRepo(newTestDB(t))
	ctx := context.Background()

	token := &domain.APIToken{RepositoryID: "repo-1", Digest: "d1"}
	if err := repo.Create(ctx, token); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if token.ID == "" {
		t.Fatal("Create() did not assign an id")
	}

	got, err := repo.GetByDigest(ctx, "d1")
	if err != nil {
		t.Fatalf("GetByDigest() error = %v", err)
	}
	if got.RepositoryID != "repo-1" || got.IsRevoked() {
		t.Fatalf("GetByDigest() = %+v", got)
	}

	revokedAt := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	if err := repo.Revoke(ctx, "d1", revokedAt); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if err := repo.Revoke(ctx, "d1", revokedAt.Add(time.Hour)); err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}

	got, err = repo.GetByDigest(ctx, "d1")
	if err != nil {
		t.Fatalf("GetByDigest() error = %v", err)
	}
	if !got.IsRevoked() || !got.RevokedAt.Equal(revokedAt) {
		t.Fatalf("RevokedAt = %v, want %v", got.RevokedAt, revokedAt)
	}
}

func TestGormTokenRepoErrors(t *testing.T) {
	t.Parallel()

	repo := NewGormTokenRepo(newTestDB(t))
	ctx := context.Background()

	if _, err := repo.GetByDigest(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByDigest() error = %v, want ErrNotFound", err)
	}
	if err := repo.Revoke(ctx, "missing", time.Now()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Revoke() error = %v, want ErrNotFound", err)
	}

	if err := repo.Create(ctx, &domain.APIToken{RepositoryID: "a", Digest: "dup"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := repo.Create(ctx, &domain.APIToken{RepositoryID: "b", Digest: "dup"}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("duplicate Create() error = %v, want ErrConflict", err)
	}
}

func TestGormChannelConfigRepo(t *testing.T) {
	t.Parallel()

	repo := NewGormChannelConfigRepo(newTestDB(t))
	ctx := context.Background()

	slack := &domain.ChannelConfig{RepositoryID: "repo-1", Kind: domain.ChannelKindSlack, EndpointURL: "https://hooks.slack.com/x", Enabled: true}
	hook := &domain.ChannelConfig{RepositoryID: "repo-1", Kind: domain.ChannelKindWebhook, EndpointURL: "https://example.com/in", Secret: "s", Enabled: false}
	other := &domain.ChannelConfig{RepositoryID: "repo-2", Kind: domain.ChannelKindTeams, EndpointURL: "https://teams.example.com", Enabled: true}

	for _, c := range []*domain.ChannelConfig{slack, hook, other} {
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	configs, err := repo.ListByRepository(ctx, "repo-1")
	if err != nil {
		t.Fatalf("ListByRepository() error = %v", err)
	}
	if len(configs) != 2 {
		t.Fatalf("ListByRepository() len = %d, want 2", len(configs))
	}

	byID := map[string]domain.ChannelConfig{}
	for _, c := range configs {
		byID[c.ID] = c
	}
	if got := byID[hook.ID]; got.Enabled || got.Secret != "s" {
		t.Fatalf("webhook config = %+v, want disabled with secret", got)
	}

	if err := repo.SetEnabled(ctx, hook.ID, true); err != nil {
		t.Fatalf("SetEnabled() error = %v", err)
	}
	got, err := repo.GetByID(ctx, hook.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.Enabled {
		t.Fatal("SetEnabled() did not persist")
	}

	if err := repo.SetEnabled(ctx, uuid.NewString(), true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("SetEnabled() error = %v, want ErrNotFound", err)
	}
}

func TestGormAttemptRepoSentChannelIDs(t *testing.T) {
	t.Parallel()

	repo := NewGormAttemptRepo(newTestDB(t))
	ctx := context.Background()

	status := 200
	attempts := []*domain.DeliveryAttempt{
		{EventID: "evt-1", ChannelID: "a", ChannelKind: domain.ChannelKindSlack, AttemptNumber: 1, Outcome: domain.OutcomeTransientFailure},
		{EventID: "evt-1", ChannelID: "a", ChannelKind: domain.ChannelKindSlack, AttemptNumber: 2, Outcome: domain.OutcomeSent, StatusCode: &status},
		{EventID: "evt-1", ChannelID: "b", ChannelKind: domain.ChannelKindTeams, AttemptNumber: 1, Outcome: domain.OutcomeRejected},
		{EventID: "evt-2", ChannelID: "b", ChannelKind: domain.ChannelKindTeams, AttemptNumber: 1, Outcome: domain.OutcomeSent},
	}
	for _, a := range attempts {
		if err := repo.Create(ctx, a); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	sent, err := repo.SentChannelIDs(ctx, "evt-1")
	if err != nil {
		t.Fatalf("SentChannelIDs() error = %v", err)
	}
	if len(sent) != 1 {
		t.Fatalf("SentChannelIDs() = %v, want only a", sent)
	}
	if _, ok := sent["a"]; !ok {
		t.Fatalf("SentChannelIDs() = %v, want a", sent)
	}

	var stored DeliveryAttemptModel
	err = repo.db.WithContext(ctx).
		Where("event_id = ? AND channel_id = ? AND attempt_number = ?", "evt-1", "a", 2).
		First(&stored).Error
	if err != nil {
		t.Fatalf("First() error = %v", err)
	}
	got := attemptModelToDomain(&stored)
	if got.Outcome != domain.OutcomeSent || got.StatusCode == nil || *got.StatusCode != 200 {
		t.Fatalf("stored attempt = %+v", got)
	}
}

func TestGormArtifactRepo(t *testing.T) {
	t.Parallel()

	repo := NewGormArtifactRepo(newTestDB(t))
	ctx := context.Background()

	artifact := &domain.ReportArtifact{
		RepositoryID: "repo-1",
		SHA256:       "abc",
		SizeBytes:    4,
		ContentType:  "application/json",
		Content:      []byte(`{"a"`),
	}
	if err := repo.Create(ctx, artifact); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	var stored ReportArtifactModel
	if err := repo.db.WithContext(ctx).First(&stored, "id = ?", artifact.ID).Error; err != nil {
		t.Fatalf("First() error = %v", err)
	}
	got := artifactModelToDomain(&stored)
	if string(got.Content) != `{"a"` || got.SHA256 != "abc" || got.SizeBytes != 4 {
		t.Fatalf("stored artifact = %+v", got)
	}
	if artifact.Ref() != "artifact://"+artifact.ID {
		t.Fatalf("Ref() = %q", artifact.Ref())
	}
}
