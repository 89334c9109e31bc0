package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/observability"
	"github.com/kursadbilgin/concur-gateway/internal/repository"
	"github.com/kursadbilgin/concur-gateway/internal/token"
	"go.uber.org/zap"
)

// IssuedToken is returned once at issuance; the raw token is not retrievable
// afterwards.
type IssuedToken struct {
	ID           string
	RepositoryID string
	Token        string
	CreatedAt    time.Time
}

// TokenVerifier resolves a bearer token to the repository it authorizes.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (string, error)
}

type TokenService struct {
	tokens   repository.TokenRepository
	logger   *zap.Logger
	now      func() time.Time
	generate func(now time.Time) (string, error)
}

func NewTokenService(tokens repository.TokenRepository, logger *zap.Logger) (*TokenService, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TokenService{
		tokens:   tokens,
		logger:   logger.Named("tokens"),
		now:      time.Now,
		generate: token.Generate,
	}, nil
}

// Issue creates a token for repositoryID and stores only its digest.
func (s *TokenService) Issue(ctx context.Context, repositoryID string) (*IssuedToken, error) {
	repositoryID = strings.TrimSpace(repositoryID)
	if repositoryID == "" {
		return nil, fmt.Errorf("%w: repositoryId is required", domain.ErrValidation)
	}

	now := s.now().UTC()
	raw, err := s.generate(now)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	record := &domain.APIToken{
		ID:           uuid.NewString(),
		RepositoryID: repositoryID,
		Digest:       token.Hash(raw),
		CreatedAt:    now,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	s.logger.Info("token issued",
		zap.String("tokenId", record.ID),
		zap.String("repositoryId", repositoryID),
		zap.String("token", observability.RedactToken(raw)),
	)

	return &IssuedToken{
		ID:           record.ID,
		RepositoryID: repositoryID,
		Token:        raw,
		CreatedAt:    now,
	}, nil
}

// Revoke permanently disables raw. Revoking twice is not an error.
func (s *TokenService) Revoke(ctx context.Context, raw string) error {
	if !token.ValidateFormat(raw) {
		return fmt.Errorf("%w: malformed token", domain.ErrValidation)
	}

	if err := s.tokens.Revoke(ctx, token.Hash(raw), s.now().UTC()); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return err
		}
		return fmt.Errorf("%w: %v", domain.ErrUpstreamStore, err)
	}

	s.logger.Info("token revoked", zap.String("token", observability.RedactToken(raw)))
	return nil
}

// Verify returns the repository raw authorizes. Malformed, unknown and
// revoked tokens all yield domain.ErrUnauthorized.
func (s *TokenService) Verify(ctx context.Context, raw string) (string, error) {
	if !token.ValidateFormat(raw) {
		return "", fmt.Errorf("%w: malformed token", domain.ErrUnauthorized)
	}

	digest := token.Hash(raw)
	record, err := s.tokens.GetByDigest(ctx, digest)
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w: unknown token", domain.ErrUnauthorized)
	}
	if err != nil {
		return "", fmt.Errorf("%w: token lookup failed: %v", domain.ErrUpstreamStore, err)
	}

	if !token.ConstantTimeEquals(record.Digest, digest) {
		return "", fmt.Errorf("%w: unknown token", domain.ErrUnauthorized)
	}
	if record.IsRevoked() {
		return "", fmt.Errorf("%w: token revoked", domain.ErrUnauthorized)
	}

	return record.RepositoryID, nil
}
