package service

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/observability"
	"github.com/kursadbilgin/concur-gateway/internal/queue"
	"github.com/kursadbilgin/concur-gateway/internal/ratelimit"
	"github.com/kursadbilgin/concur-gateway/internal/repository"
	"go.uber.org/zap"
)

// Submission statuses returned to CI callers.
const (
	StatusAccepted         = "accepted"
	StatusAcceptedDegraded = "accepted_degraded"
)

const defaultContentType = "application/json"

// IngestionConfig holds the submission budget of every repository.
type IngestionConfig struct {
	LimitPrefix string
	Limit       int
	Window      time.Duration
}

// SubmitRequest is one report upload.
type SubmitRequest struct {
	Token       string
	Body        []byte
	ContentType string
}

// SubmitResult describes an accepted submission.
type SubmitResult struct {
	Status       string
	ReportID     string
	RepositoryID string
	Limit        int
	Remaining    int
	ResetAt      time.Time
}

// reportHeader is the part of a warning run the gateway reads; the rest of the
// document is stored as-is for the analysis consumer.
type reportHeader struct {
	ID        string `json:"id"`
	CommitSHA string `json:"commit_sha"`
	Branch    string `json:"branch"`
}

type IngestionService struct {
	tokens    TokenVerifier
	limiter   ratelimit.RateLimiter
	artifacts repository.ArtifactRepository
	publisher queue.Publisher
	cfg       IngestionConfig
	logger    *zap.Logger
	metrics   *observability.Metrics
	now       func() time.Time
}

func NewIngestionService(
	tokens TokenVerifier,
	limiter ratelimit.RateLimiter,
	artifacts repository.ArtifactRepository,
	publisher queue.Publisher,
	cfg IngestionConfig,
	logger *zap.Logger,
) (*IngestionService, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token verifier is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if artifacts == nil {
		return nil, fmt.Errorf("artifact repository is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if cfg.Limit <= 0 {
		return nil, fmt.Errorf("rate limit must be positive")
	}
	if cfg.Window <= 0 {
		return nil, fmt.Errorf("rate limit window must be positive")
	}
	if strings.TrimSpace(cfg.LimitPrefix) == "" {
		cfg.LimitPrefix = "ingest"
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &IngestionService{
		tokens:    tokens,
		limiter:   limiter,
		artifacts: artifacts,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.Named("ingestion"),
		now:       time.Now,
	}, nil
}

func (s *IngestionService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Submit authenticates the caller, charges the repository's budget, stores
// the report and enqueues it for analysis. Failures after the budget was
// charged degrade the result instead of failing it.
func (s *IngestionService) Submit(ctx context.Context, req SubmitRequest) (*SubmitResult, error) {
	repositoryID, err := s.tokens.Verify(ctx, req.Token)
	if err != nil {
		s.countRejection(err)
		return nil, err
	}
	ctx = observability.WithRepositoryID(ctx, repositoryID)
	logger := observability.WithContextLogger(s.logger, ctx)

	header, err := parseReport(req.Body)
	if err != nil {
		s.metrics.IncIngest("invalid")
		return nil, err
	}

	key := ratelimit.Key{Prefix: s.cfg.LimitPrefix, RepositoryID: repositoryID}
	decision, err := s.limiter.CheckAndIncrement(ctx, key, s.cfg.Limit, s.cfg.Window)
	if err != nil {
		s.metrics.IncRateLimiterError()
		s.metrics.IncIngest("error")
		logger.Error("rate limiter unavailable", zap.Error(err))
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrUpstreamStore, err)
	}
	if !decision.Allowed {
		s.metrics.IncIngest("rate_limited")
		logger.Info("submission rate limited",
			zap.Int("count", decision.Count),
			zap.Int("limit", decision.Limit),
			zap.Time("resetAt", decision.ResetAt),
		)
		return nil, &domain.RateLimitedError{
			RepositoryID: repositoryID,
			Limit:        decision.Limit,
			ResetAt:      decision.ResetAt,
		}
	}

	result := &SubmitResult{
		Status:       StatusAccepted,
		ReportID:     uuid.NewString(),
		RepositoryID: repositoryID,
		Limit:        decision.Limit,
		Remaining:    decision.Remaining,
		ResetAt:      decision.ResetAt,
	}

	if stage, err := s.store(ctx, result, header, req); err != nil {
		result.Status = StatusAcceptedDegraded
		s.metrics.IncDegradedIngestion(stage)
		logger.Error("submission accepted without durable hand-off",
			zap.String("reportId", result.ReportID),
			zap.String("stage", stage),
			zap.Error(err),
		)
	}

	s.metrics.IncIngest(result.Status)
	logger.Info("submission accepted",
		zap.String("reportId", result.ReportID),
		zap.String("status", result.Status),
		zap.Int("remaining", result.Remaining),
	)

	return result, nil
}

// store persists the artifact and publishes the analysis job. On failure it
// reports the stage that failed.
func (s *IngestionService) store(ctx context.Context, result *SubmitResult, header reportHeader, req SubmitRequest) (string, error) {
	contentType := strings.TrimSpace(req.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	sum := sha256.Sum256(req.Body)
	artifact := &domain.ReportArtifact{
		ID:           result.ReportID,
		RepositoryID: result.RepositoryID,
		SHA256:       hex.EncodeToString(sum[:]),
		SizeBytes:    int64(len(req.Body)),
		ContentType:  contentType,
		Content:      req.Body,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.artifacts.Create(ctx, artifact); err != nil {
		return "artifact", err
	}

	correlationID, _ := observability.CorrelationIDFromContext(ctx)
	job := queue.AnalysisJob{
		ReportID:      result.ReportID,
		RepositoryID:  result.RepositoryID,
		ArtifactRef:   artifact.Ref(),
		CommitSHA:     header.CommitSHA,
		Branch:        header.Branch,
		RunID:         header.ID,
		CorrelationID: correlationID,
		SubmittedAt:   artifact.CreatedAt,
	}
	if err := s.publisher.Publish(ctx, queue.AnalysisJobsQueue, job); err != nil {
		return "publish", err
	}

	return "", nil
}

func (s *IngestionService) countRejection(err error) {
	switch {
	case errors.Is(err, domain.ErrUnauthorized):
		s.metrics.IncIngest("unauthorized")
	default:
		s.metrics.IncIngest("error")
	}
}

// parseReport checks that body is a JSON object and extracts its header.
func parseReport(body []byte) (reportHeader, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return reportHeader{}, fmt.Errorf("%w: report body is empty", domain.ErrValidation)
	}
	if trimmed[0] != '{' || !json.Valid(trimmed) {
		return reportHeader{}, fmt.Errorf("%w: report body must be a JSON object", domain.ErrValidation)
	}

	var header reportHeader
	if err := json.Unmarshal(trimmed, &header); err != nil {
		return reportHeader{}, fmt.Errorf("%w: report header: %v", domain.ErrValidation, err)
	}
	return header, nil
}
