package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/concur-gateway/internal/channel"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/observability"
	"github.com/kursadbilgin/concur-gateway/internal/queue"
	"github.com/kursadbilgin/concur-gateway/internal/repository"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	minWorkerConcurrency = 1
	defaultMaxAttempts   = 5
	maxRetryDelay        = 60 * time.Second
	baseRetryDelay       = time.Second
	maxRetryJitterMillis = 250
	maxStoredError       = 1024
)

// ChannelResolver turns stored channel configs into dispatchers.
type ChannelResolver interface {
	Resolve(repositoryChannels []domain.ChannelConfig) ([]channel.Dispatcher, error)
}

// WorkerConfig tunes the notification worker.
type WorkerConfig struct {
	Concurrency int
	MaxAttempts int
	// DashboardBaseURL fills NotificationData.DashboardURL when the
	// analysis result carries none.
	DashboardBaseURL string
}

type WorkerService struct {
	channels    repository.ChannelConfigRepository
	attempts    repository.AttemptRepository
	resolver    ChannelResolver
	fanout      *FanoutService
	consumer    queue.Consumer
	publisher   queue.Publisher
	logger      *zap.Logger
	metrics     *observability.Metrics
	concurrency int
	maxAttempts int
	dashboard   string
	now         func() time.Time
	randIntn    func(n int) int
}

func NewWorkerService(
	channels repository.ChannelConfigRepository,
	attempts repository.AttemptRepository,
	resolver ChannelResolver,
	fanout *FanoutService,
	consumer queue.Consumer,
	publisher queue.Publisher,
	cfg WorkerConfig,
	logger *zap.Logger,
) (*WorkerService, error) {
	if channels == nil || attempts == nil {
		return nil, fmt.Errorf("channel and attempt repositories are required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("channel resolver is required")
	}
	if consumer == nil || publisher == nil {
		return nil, fmt.Errorf("consumer and publisher are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if fanout == nil {
		fanout = NewFanoutService(0, 0, logger)
	}
	if cfg.Concurrency < minWorkerConcurrency {
		cfg.Concurrency = minWorkerConcurrency
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}

	return &WorkerService{
		channels:    channels,
		attempts:    attempts,
		resolver:    resolver,
		fanout:      fanout,
		consumer:    consumer,
		publisher:   publisher,
		logger:      logger.Named("worker"),
		concurrency: cfg.Concurrency,
		maxAttempts: cfg.MaxAttempts,
		dashboard:   strings.TrimRight(strings.TrimSpace(cfg.DashboardBaseURL), "/"),
		now:         time.Now,
		randIntn:    rand.Intn,
	}, nil
}

func (s *WorkerService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
	s.fanout.SetMetrics(metrics)
}

// Start consumes the notifications queue until context cancellation.
func (s *WorkerService) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < s.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			s.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queue.NotificationsQueue),
			)

			err := s.consumer.Consume(groupCtx, queue.NotificationsQueue, s.processMessage)
			if err != nil {
				s.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.Error(err),
				)
				return err
			}

			s.logger.Info("worker stopped", zap.Int("workerId", workerID))
			return nil
		})
	}

	return g.Wait()
}

// processMessage fans one event out to the channels that still need it. A
// returned error requeues the job; per-channel failures never do.
func (s *WorkerService) processMessage(ctx context.Context, job queue.NotificationJob) error {
	ctx = observability.WithRepositoryID(ctx, job.Data.RepositoryID)
	logger := observability.WithContextLogger(s.logger, ctx).With(
		zap.String("eventId", job.EventID),
		zap.Int("attempt", job.Attempt),
	)

	pending, err := s.pendingDispatchers(ctx, job, logger)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		logger.Info("no channels left to deliver")
		return nil
	}

	data := job.Data
	if data.DashboardURL == "" && s.dashboard != "" {
		data.DashboardURL = dashboardURL(s.dashboard, data)
	}

	results := s.fanout.Deliver(ctx, pending, data)

	var recordErrs error
	retryIDs := make([]string, 0, len(results))
	retryKinds := make([]string, 0, len(results))
	for _, result := range results {
		if err := s.recordAttempt(ctx, job, result); err != nil {
			recordErrs = multierr.Append(recordErrs, fmt.Errorf("%s: %w", result.ChannelID, err))
		}
		if result.Outcome.Retryable() {
			retryIDs = append(retryIDs, result.ChannelID)
			retryKinds = append(retryKinds, result.Kind.String())
		}
	}
	if recordErrs != nil {
		logger.Error("failed to record delivery attempts", zap.Error(recordErrs))
	}

	if len(retryIDs) == 0 {
		return nil
	}

	if job.Attempt >= s.maxAttempts {
		for _, kind := range retryKinds {
			s.metrics.IncRetryExhausted(kind)
		}
		logger.Warn("delivery attempts exhausted",
			zap.Strings("channelIds", retryIDs),
			zap.Int("maxAttempts", s.maxAttempts),
		)
		return nil
	}

	retry := queue.NotificationJob{
		EventID:       job.EventID,
		Attempt:       job.Attempt + 1,
		ChannelIDs:    retryIDs,
		CorrelationID: job.CorrelationID,
		Data:          job.Data,
	}
	delay := s.computeRetryDelay(job.Attempt)
	if err := s.publisher.PublishDelayed(ctx, queue.NotificationsRetryQueue, retry, delay); err != nil {
		return fmt.Errorf("failed to schedule retry: %w", err)
	}
	for _, kind := range retryKinds {
		s.metrics.IncRetryScheduled(kind)
	}
	logger.Info("retry scheduled",
		zap.Strings("channelIds", retryIDs),
		zap.Int("nextAttempt", retry.Attempt),
		zap.Duration("delay", delay),
	)

	return nil
}

// pendingDispatchers resolves the repository's channels, narrows them to the
// job's channel ids and drops channels that already received the event.
func (s *WorkerService) pendingDispatchers(ctx context.Context, job queue.NotificationJob, logger *zap.Logger) ([]channel.Dispatcher, error) {
	configs, err := s.channels.ListByRepository(ctx, job.Data.RepositoryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}

	dispatchers, resolveErr := s.resolver.Resolve(configs)
	if resolveErr != nil {
		logger.Warn("some channels could not be built", zap.Error(resolveErr))
	}

	sent, err := s.attempts.SentChannelIDs(ctx, job.EventID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sent channels: %w", err)
	}

	var wanted map[string]struct{}
	if len(job.ChannelIDs) > 0 {
		wanted = make(map[string]struct{}, len(job.ChannelIDs))
		for _, id := range job.ChannelIDs {
			wanted[id] = struct{}{}
		}
	}

	pending := make([]channel.Dispatcher, 0, len(dispatchers))
	for _, d := range dispatchers {
		if wanted != nil {
			if _, ok := wanted[d.ID()]; !ok {
				continue
			}
		}
		if _, done := sent[d.ID()]; done {
			logger.Debug("channel already delivered", zap.String("channelId", d.ID()))
			continue
		}
		pending = append(pending, d)
	}

	return pending, nil
}

func (s *WorkerService) computeRetryDelay(attemptNumber int) time.Duration {
	if attemptNumber < 1 {
		attemptNumber = 1
	}

	delay := baseRetryDelay
	for i := 1; i < attemptNumber; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			delay = maxRetryDelay
			break
		}
	}

	jitterMillis := 0
	if s.randIntn != nil && maxRetryJitterMillis > 0 {
		jitterMillis = s.randIntn(maxRetryJitterMillis + 1)
	}

	return delay + time.Duration(jitterMillis)*time.Millisecond
}

func (s *WorkerService) recordAttempt(ctx context.Context, job queue.NotificationJob, result ChannelResult) error {
	var statusCode *int
	var responseBody *string
	var attemptErr *string

	if result.Err != nil {
		value := truncateError(result.Err.Error())
		attemptErr = &value

		var deliveryErr *channel.DeliveryError
		if errors.As(result.Err, &deliveryErr) {
			if deliveryErr.StatusCode > 0 {
				code := deliveryErr.StatusCode
				statusCode = &code
			}
			if body := strings.TrimSpace(deliveryErr.Body); body != "" {
				responseBody = &body
			}
		}
	}

	attempt := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		EventID:       job.EventID,
		ChannelID:     result.ChannelID,
		ChannelKind:   result.Kind,
		AttemptNumber: job.Attempt,
		Outcome:       result.Outcome,
		StatusCode:    statusCode,
		ResponseBody:  responseBody,
		Error:         attemptErr,
		CreatedAt:     s.now().UTC(),
	}

	return s.attempts.Create(ctx, attempt)
}

func dashboardURL(base string, data domain.NotificationData) string {
	return base + "/repositories/" + url.PathEscape(data.RepositoryID) + "/events/" + url.PathEscape(data.EventID)
}

func truncateError(s string) string {
	if len(s) <= maxStoredError {
		return s
	}
	return s[:maxStoredError]
}
