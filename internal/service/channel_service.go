package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/kursadbilgin/concur-gateway/internal/channel"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/observability"
	"github.com/kursadbilgin/concur-gateway/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ChannelService manages repository channel configs.
type ChannelService struct {
	channels repository.ChannelConfigRepository
	resolver ChannelResolver
	logger   *zap.Logger
}

func NewChannelService(channels repository.ChannelConfigRepository, resolver ChannelResolver, logger *zap.Logger) (*ChannelService, error) {
	if channels == nil {
		return nil, fmt.Errorf("channel repository is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("channel resolver is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &ChannelService{
		channels: channels,
		resolver: resolver,
		logger:   logger.Named("channels"),
	}, nil
}

// Create stores a new enabled channel for cfg.RepositoryID.
func (s *ChannelService) Create(ctx context.Context, cfg *domain.ChannelConfig) (*domain.ChannelConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: channel config is required", domain.ErrValidation)
	}

	cfg.RepositoryID = strings.TrimSpace(cfg.RepositoryID)
	if cfg.RepositoryID == "" {
		return nil, fmt.Errorf("%w: repositoryId is required", domain.ErrValidation)
	}
	cfg.EndpointURL = strings.TrimSpace(cfg.EndpointURL)
	if strings.TrimSpace(cfg.ID) == "" {
		cfg.ID = uuid.NewString()
	}
	cfg.Enabled = true

	// Building a dispatcher validates the kind and endpoint URL.
	if _, err := channel.New(*cfg, channel.Options{}); err != nil {
		return nil, err
	}

	if err := s.channels.Create(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("channel created",
		zap.String("channelId", cfg.ID),
		zap.String("repositoryId", cfg.RepositoryID),
		zap.String("kind", cfg.Kind.String()),
		zap.String("endpoint", observability.RedactURL(cfg.EndpointURL)),
	)

	return cfg, nil
}

// TestAll probes every channel that would receive the repository's events
// and reports which ones answered.
func (s *ChannelService) TestAll(ctx context.Context, repositoryID string) (map[string]bool, error) {
	repositoryID = strings.TrimSpace(repositoryID)
	if repositoryID == "" {
		return nil, fmt.Errorf("%w: repositoryId is required", domain.ErrValidation)
	}

	configs, err := s.channels.ListByRepository(ctx, repositoryID)
	if err != nil {
		return nil, err
	}

	dispatchers, resolveErr := s.resolver.Resolve(configs)
	if resolveErr != nil {
		s.logger.Warn("some channels could not be built",
			zap.String("repositoryId", repositoryID),
			zap.Error(resolveErr),
		)
	}

	results := make([]bool, len(dispatchers))
	var g errgroup.Group
	for i, d := range dispatchers {
		g.Go(func() error {
			results[i] = d.TestConnection(ctx)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]bool, len(dispatchers))
	for i, d := range dispatchers {
		out[d.ID()] = results[i]
	}
	return out, nil
}

// Disable stops delivery to a repository channel. A channel owned by another
// repository is reported as not found.
func (s *ChannelService) Disable(ctx context.Context, repositoryID, channelID string) error {
	repositoryID = strings.TrimSpace(repositoryID)
	channelID = strings.TrimSpace(channelID)
	if repositoryID == "" || channelID == "" {
		return fmt.Errorf("%w: repositoryId and channelId are required", domain.ErrValidation)
	}

	cfg, err := s.channels.GetByID(ctx, channelID)
	if err != nil {
		return err
	}
	if cfg.RepositoryID != repositoryID {
		return domain.ErrNotFound
	}

	if err := s.channels.SetEnabled(ctx, channelID, false); err != nil {
		return err
	}

	s.logger.Info("channel disabled",
		zap.String("channelId", channelID),
		zap.String("repositoryId", repositoryID),
	)
	return nil
}
