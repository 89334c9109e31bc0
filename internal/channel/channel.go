// Package channel delivers formatted analysis results to Teams, Slack and
// generic webhook endpoints.
package channel

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/concur-gateway/internal/domain"
	"github.com/kursadbilgin/concur-gateway/internal/notify"
	"github.com/kursadbilgin/concur-gateway/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout  = 10 * time.Second
	maxStoredBody   = 512
	SignatureHeader = "X-Signature-256"

	probeTitle = "Connection test"
	probeText  = "This channel is connected to the concurrency warning gateway."
)

// Dispatcher is the outbound port for one configured channel.
type Dispatcher interface {
	ID() string
	Kind() domain.ChannelKind
	Send(ctx context.Context, data domain.NotificationData) error
	SendSimpleMessage(ctx context.Context, text, title string) error
	TestConnection(ctx context.Context) bool
}

// Options are shared by every dispatcher built from one registry.
type Options struct {
	Timeout       time.Duration
	RatePerSecond float64
	Format        notify.Options
	// Client is used as given. It must have retries disabled because
	// redelivery is scheduled through the retry queue.
	Client *resty.Client
	Logger *zap.Logger
	Now    func() time.Time
}

// New builds the dispatcher matching cfg.Kind.
func New(cfg domain.ChannelConfig, opts Options) (Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case domain.ChannelKindTeams:
		return NewTeams(cfg, opts)
	case domain.ChannelKindSlack:
		return NewSlack(cfg, opts)
	case domain.ChannelKindWebhook:
		return NewWebhook(cfg, opts)
	default:
		return nil, fmt.Errorf("%w: unsupported channel kind %q", domain.ErrValidation, cfg.Kind)
	}
}

// endpoint is the HTTP plumbing shared by every dispatcher kind.
type endpoint struct {
	id           string
	kind         domain.ChannelKind
	url          string
	secret       string
	expectedBody string
	client       *resty.Client
	limiter      *rate.Limiter
	logger       *zap.Logger
	format       notify.Options
	now          func() time.Time
}

func newEndpoint(cfg domain.ChannelConfig, opts Options, expectedBody string) (*endpoint, error) {
	trimmed := strings.TrimSpace(cfg.EndpointURL)
	parsed, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid %s endpoint", domain.ErrValidation, cfg.Kind)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s endpoint must use http or https", domain.ErrValidation, cfg.Kind)
	}

	client := opts.Client
	if client == nil {
		client = resty.New()
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client.SetTimeout(timeout).SetRetryCount(0)
	} else if client.RetryCount > 0 {
		return nil, fmt.Errorf("%w: shared http client must not retry", domain.ErrValidation)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), 1)
	}

	return &endpoint{
		id:           cfg.ID,
		kind:         cfg.Kind,
		url:          trimmed,
		secret:       cfg.Secret,
		expectedBody: expectedBody,
		client:       client,
		limiter:      limiter,
		logger: logger.Named("channel").With(
			zap.String("channelId", cfg.ID),
			zap.String("kind", cfg.Kind.String()),
			zap.String("endpoint", observability.RedactURL(trimmed)),
		),
		format: opts.Format,
		now:    now,
	}, nil
}

func (e *endpoint) ID() string               { return e.id }
func (e *endpoint) Kind() domain.ChannelKind { return e.kind }

func (e *endpoint) post(ctx context.Context, payload any) error {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return e.failure(domain.OutcomeTransientFailure, 0, "", fmt.Errorf("pacing wait: %w", err))
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return e.failure(domain.OutcomeRejected, 0, "", fmt.Errorf("marshal payload: %w", err))
	}

	req := e.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(body)
	if e.secret != "" {
		req.SetHeader(SignatureHeader, Sign(e.secret, body))
	}

	response, err := req.Post(e.url)
	if err != nil {
		return e.failure(domain.OutcomeTransientFailure, 0, "", e.redact(err))
	}
	if response == nil {
		return e.failure(domain.OutcomeTransientFailure, 0, "", errors.New("empty response"))
	}

	statusCode := response.StatusCode()
	responseBody := truncate(strings.TrimSpace(response.String()), maxStoredBody)

	if outcome := classifyStatus(statusCode); outcome != domain.OutcomeSent {
		return e.failure(outcome, statusCode, responseBody, nil)
	}

	if e.expectedBody != "" && responseBody != e.expectedBody {
		e.logger.Warn("channel accepted request with unexpected response body",
			zap.Int("statusCode", statusCode),
			zap.String("body", responseBody),
		)
	}

	return nil
}

func (e *endpoint) failure(outcome domain.DeliveryOutcome, statusCode int, body string, cause error) error {
	return &DeliveryError{
		ChannelID:  e.id,
		Kind:       e.kind,
		StatusCode: statusCode,
		Body:       body,
		Outcome:    outcome,
		Cause:      cause,
	}
}

func testConnection(ctx context.Context, d Dispatcher, logger *zap.Logger) bool {
	if err := d.SendSimpleMessage(ctx, probeText, probeTitle); err != nil {
		logger.Info("channel connection test failed", zap.Error(err))
		return false
	}
	return true
}

// Sign returns the X-Signature-256 header value for body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// redact strips the endpoint from transport error messages.
func (e *endpoint) redact(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = observability.RedactURL(urlErr.URL)
	}
	if msg := err.Error(); strings.Contains(msg, e.url) {
		return &redactedError{
			msg:   strings.ReplaceAll(msg, e.url, observability.RedactURL(e.url)),
			cause: err,
		}
	}
	return err
}

type redactedError struct {
	msg   string
	cause error
}

func (e *redactedError) Error() string { return e.msg }
func (e *redactedError) Unwrap() error { return e.cause }

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
