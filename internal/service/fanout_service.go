package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/concur-gateway/internal/channel"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/observability"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultChannelTimeout = 5 * time.Second
	defaultFanoutTimeout  = 15 * time.Second
)

// ChannelResult is the outcome of delivering one event to one channel.
type ChannelResult struct {
	ChannelID string
	Kind      domain.ChannelKind
	Outcome   domain.DeliveryOutcome
	Err       error
	Duration  time.Duration
}

// FanoutService delivers one event to many channels concurrently. A failing
// channel never affects the others.
type FanoutService struct {
	channelTimeout time.Duration
	fanoutTimeout  time.Duration
	logger         *zap.Logger
	metrics        *observability.Metrics
	now            func() time.Time
}

func NewFanoutService(channelTimeout, fanoutTimeout time.Duration, logger *zap.Logger) *FanoutService {
	if channelTimeout <= 0 {
		channelTimeout = defaultChannelTimeout
	}
	if fanoutTimeout <= 0 {
		fanoutTimeout = defaultFanoutTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FanoutService{
		channelTimeout: channelTimeout,
		fanoutTimeout:  fanoutTimeout,
		logger:         logger.Named("fanout"),
		now:            time.Now,
	}
}

func (s *FanoutService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Deliver sends data to every dispatcher and returns one result per
// dispatcher, in input order.
func (s *FanoutService) Deliver(ctx context.Context, dispatchers []channel.Dispatcher, data domain.NotificationData) []ChannelResult {
	results := make([]ChannelResult, len(dispatchers))
	if len(dispatchers) == 0 {
		return results
	}

	fanoutCtx, cancel := context.WithTimeout(ctx, s.fanoutTimeout)
	defer cancel()

	var g errgroup.Group
	for i, d := range dispatchers {
		g.Go(func() error {
			results[i] = s.deliverOne(fanoutCtx, d, data)
			return nil
		})
	}
	_ = g.Wait()

	s.logSummary(ctx, data.EventID, results)
	return results
}

func (s *FanoutService) deliverOne(ctx context.Context, d channel.Dispatcher, data domain.NotificationData) ChannelResult {
	kind := d.Kind().String()
	s.metrics.IncDeliveryInFlight(kind)
	defer s.metrics.DecDeliveryInFlight(kind)

	channelCtx, cancel := context.WithTimeout(ctx, s.channelTimeout)
	defer cancel()

	start := s.now()
	err := d.Send(channelCtx, data)
	duration := s.now().Sub(start)

	outcome := channel.OutcomeOf(err)
	s.metrics.IncDelivery(kind, outcome.String())
	s.metrics.ObserveDeliveryDuration(kind, duration)

	return ChannelResult{
		ChannelID: d.ID(),
		Kind:      d.Kind(),
		Outcome:   outcome,
		Err:       err,
		Duration:  duration,
	}
}

func (s *FanoutService) logSummary(ctx context.Context, eventID string, results []ChannelResult) {
	var errs error
	sent := 0
	for _, r := range results {
		if r.Err == nil {
			sent++
			continue
		}
		errs = multierr.Append(errs, fmt.Errorf("%s: %w", r.ChannelID, r.Err))
	}

	logger := observability.WithContextLogger(s.logger, ctx)
	fields := []zap.Field{
		zap.String("eventId", eventID),
		zap.Int("channels", len(results)),
		zap.Int("sent", sent),
	}
	if errs != nil {
		logger.Warn("fan-out finished with failures", append(fields, zap.Error(errs))...)
		return
	}
	logger.Info("fan-out finished", fields...)
}
